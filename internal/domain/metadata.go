package domain

// Metadata is free-form caller-supplied data attached to an entity. It
// is persisted as JSONB and queried by key/value containment.
type Metadata map[string]interface{}
