package messagequeue

// DefinitionEventPayload is the schema for feedback.definitions.* messages.
type DefinitionEventPayload struct {
	DefinitionID string `json:"definition_id"`
	WorkspaceID  string `json:"workspace_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Version      int    `json:"version"`
	// Outcome is set on deletion events: "hard" or "soft".
	Outcome string `json:"outcome,omitempty"`
}

// InstanceEventPayload is the schema for feedback.instances.* messages.
type InstanceEventPayload struct {
	InstanceID   string `json:"instance_id"`
	DefinitionID string `json:"definition_id"`
	WorkspaceID  string `json:"workspace_id"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	SourceKind   string `json:"source_kind"`
	BatchID      string `json:"batch_id,omitempty"`
	// Verified reflects the post-event verification state on
	// feedback.instances.verified messages.
	Verified bool `json:"verified,omitempty"`
}
