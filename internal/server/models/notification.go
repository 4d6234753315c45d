package models

// RecordChanged is the change notification emitted once per committed record.
type RecordChanged struct {
	ID                  string        `json:"id"`
	Kind                string        `json:"kind"`
	Op                  OperationType `json:"op"`
	Version             int64         `json:"version,omitempty"`
	ModifiedBy          string        `json:"modifiedBy,omitempty"`
	RecordBlocks        string        `json:"recordBlocks,omitempty"`
	PreviousVersionKind string        `json:"previousVersionKind,omitempty"`
	Namespace           string        `json:"namespace,omitempty"`
}

// CollaborationContext scopes records to an isolated working namespace.
// A nil context means the shared namespace.
type CollaborationContext struct {
	ID          string `json:"id"`
	Application string `json:"application"`
}

// Key composes the storage key of id inside the namespace.
func (c *CollaborationContext) Key(id string) string {
	if c == nil || c.ID == "" {
		return id
	}
	return c.ID + id
}

// Namespace returns the namespace id, or "" for the shared namespace.
func (c *CollaborationContext) Namespace() string {
	if c == nil {
		return ""
	}
	return c.ID
}
