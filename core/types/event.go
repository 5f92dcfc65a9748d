package types

// Event is a typed record emitted during state transitions. Attributes are
// flat string pairs so events can be serialised for off-chain reconciliation
// without schema coordination.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute or the empty string when absent.
func (e *Event) Attribute(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
