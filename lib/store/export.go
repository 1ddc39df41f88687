package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grovekv/grove/lib/provider"
)

// --------------------------------------------------------------------------
// Export Document
// --------------------------------------------------------------------------

// ExportDocument is the flat JSON shape produced by Export and consumed
// by Import. The shape is stable: imports tolerate documents written by
// earlier compatible versions.
type ExportDocument struct {
	Name            string                     `json:"name"`
	ExportTimestamp int64                      `json:"exportTimestamp"`
	Keys            map[string]json.RawMessage `json:"keys"`
}

// Export serializes the full provider mapping together with the store
// name and an epoch-millisecond timestamp.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	keys, err := s.provider.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = map[string]json.RawMessage{}
	}
	return json.Marshal(ExportDocument{
		Name:            s.name,
		ExportTimestamp: time.Now().UnixMilli(),
		Keys:            keys,
	})
}

// Import reads an export document back into the store. With overwrite
// false, keys already present keep their current value; with clear true,
// the store is wiped before the import.
func (s *Store) Import(ctx context.Context, data []byte, overwrite, clear bool) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return provider.NewErrorf(provider.KindArgument, "import: malformed export document: %v", err)
	}
	if clear {
		if err := s.provider.Clear(ctx); err != nil {
			return err
		}
	}
	if len(doc.Keys) == 0 {
		return nil
	}
	return s.provider.SetMany(ctx, doc.Keys, overwrite)
}
