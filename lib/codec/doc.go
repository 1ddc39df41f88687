// Package codec provides ready-made serializer/deserializer pairs for
// the store façade. Each pair is a plain (store.Serializer,
// store.Deserializer) function tuple; nothing here is mandatory, the
// store defaults to the identity transform.
package codec
