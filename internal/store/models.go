package store

import "time"

// Field kinds stored in document_fields.kind.
const (
	FieldString = "string"
	FieldInt    = "int"
	FieldBool   = "bool"
	FieldTime   = "time"
	// FieldRef is a single reference; RefID names the target document.
	FieldRef = "ref"
	// FieldRefs rows sharing a name form one ordered list of references.
	FieldRefs = "refs"
)

// Publish outcomes stored in publish_events.outcome.
const (
	OutcomePublished = "published"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

type TreeNode struct {
	Workspace  string
	ID         string
	Path       string
	ParentPath string
	CreatedAt  time.Time
}

type DocumentRecord struct {
	ID     string
	Locale string
	Title  string
	Fields []FieldRecord
}

type FieldRecord struct {
	Name  string
	Kind  string
	Value string
	RefID string
}

type PublishEvent struct {
	ID         string
	SessionID  string
	DocumentID string
	Locale     string
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}
