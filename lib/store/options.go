package store

import (
	"encoding/json"

	"github.com/grovekv/grove/lib/provider"
	"github.com/grovekv/grove/lib/provider/memory"
)

// --------------------------------------------------------------------------
// Serialization Hooks
// --------------------------------------------------------------------------

// Serializer transforms a domain value into its stored representation
// before it is handed to the provider. key and path identify the write
// target; path is empty for whole-entry writes.
type Serializer func(value json.RawMessage, key, path string) (json.RawMessage, error)

// Deserializer transforms a stored value back into its domain
// representation after it has been read from the provider.
type Deserializer func(value json.RawMessage, key, path string) (json.RawMessage, error)

// Identity is the default transform in both directions.
func Identity(value json.RawMessage, _, _ string) (json.RawMessage, error) {
	return value, nil
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type config struct {
	factory         provider.Factory
	providerOptions map[string]any
	serializer      Serializer
	deserializer    Deserializer
	transforms      bool
	autoEnsure      json.RawMessage
}

func defaultConfig() config {
	return config{
		factory:      memory.New,
		serializer:   Identity,
		deserializer: Identity,
	}
}

// Option configures a Store during construction.
type Option func(*config)

// WithProvider selects the backing provider factory. The default is the
// in-memory provider.
func WithProvider(factory provider.Factory) Option {
	return func(c *config) {
		c.factory = factory
	}
}

// WithProviderOptions supplies the backend-specific options mapping. It
// is passed to the provider verbatim and never interpreted by the store.
func WithProviderOptions(options map[string]any) Option {
	return func(c *config) {
		c.providerOptions = options
	}
}

// WithSerializer installs the domain-to-stored transform. Installing a
// non-identity transform switches the store to whole-entry routing: path
// writes, array/numeric mutations and queries are applied to the decoded
// document by the store itself, so the provider only ever holds encoded
// whole entries.
func WithSerializer(fn Serializer) Option {
	return func(c *config) {
		if fn != nil {
			c.serializer = fn
			c.transforms = true
		}
	}
}

// WithDeserializer installs the stored-to-domain transform. See
// WithSerializer for the routing consequences.
func WithDeserializer(fn Deserializer) Option {
	return func(c *config) {
		if fn != nil {
			c.deserializer = fn
			c.transforms = true
		}
	}
}

// WithAutoEnsure sets a default stored value that Get substitutes
// transparently whenever the requested key is absent.
func WithAutoEnsure(value json.RawMessage) Option {
	return func(c *config) {
		c.autoEnsure = value
	}
}
