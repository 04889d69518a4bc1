package types

// Event is the rendered form of an engine event: a type tag plus flat string
// attributes, ready for logs or an RPC response.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute, empty when absent.
func (e *Event) Attribute(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}
