package domain

// Metadata is a mutable string-keyed bag of mixed scalar values attached
// to one pipeline run. Typed getters avoid silent cast failures at read
// time. Not safe for concurrent use: a Metadata instance is owned by
// exactly one run.
type Metadata map[string]interface{}

// NewMetadata returns an empty metadata bag.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set stores a value under key, replacing any existing value.
func (m Metadata) Set(key string, value interface{}) {
	m[key] = value
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// GetString returns the string stored under key, or "" and false if the
// key is absent or holds a non-string value.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// GetInt64 returns the integer stored under key. Values stored as int
// are widened to int64.
func (m Metadata) GetInt64(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetFloat64 returns the float stored under key.
func (m Metadata) GetFloat64(key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// GetBool returns the boolean stored under key.
func (m Metadata) GetBool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// Clone returns a shallow copy of the bag.
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
