// Package pals persists locally owned pal records. Scalar fields map to
// plain columns; every non-scalar field (parameters, schema, capabilities,
// categories, tags, creator, settings) is serialized to its own JSON column
// and decoded independently, so one malformed column degrades to its zero
// value without losing the rest of the record.
package pals
