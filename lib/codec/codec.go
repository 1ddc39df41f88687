package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/tidwall/gjson"

	"github.com/grovekv/grove/lib/store"
)

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

// Identity returns the pass-through pair. It is the store's default and
// exists here mainly so callers can be explicit about it.
func Identity() (store.Serializer, store.Deserializer) {
	return store.Identity, store.Identity
}

// --------------------------------------------------------------------------
// GZip
// --------------------------------------------------------------------------

// gzEnvelope is the stored shape of a compressed document.
type gzEnvelope struct {
	GZ string `json:"$gz"`
}

// GZip returns a pair that compresses stored documents into a
// {"$gz": "<base64>"} envelope on write and transparently inflates on
// read. Values that are not an envelope pass through unchanged, so a
// store can adopt the codec with existing uncompressed entries in place.
func GZip() (store.Serializer, store.Deserializer) {
	serialize := func(value json.RawMessage, _, _ string) (json.RawMessage, error) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return json.Marshal(gzEnvelope{
			GZ: base64.StdEncoding.EncodeToString(buf.Bytes()),
		})
	}

	deserialize := func(value json.RawMessage, _, _ string) (json.RawMessage, error) {
		enc := gjson.GetBytes(value, "$gz")
		if !enc.Exists() || enc.Type != gjson.String {
			return value, nil
		}
		packed, err := base64.StdEncoding.DecodeString(enc.String())
		if err != nil {
			return nil, err
		}
		zr, err := gzip.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}

	return serialize, deserialize
}
