package types

// Event is the wire-level representation of a state transition notification.
// Attribute values are rendered as strings so external indexers can replay
// pool history without re-querying ledger state.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
