package docsync

// Document is a locale-scoped domain object backed by a node in each store.
type Document interface {
	Identifier() string
	Path() string
	Locale() string
}

// FieldMapper is implemented by documents that declare field mappings.
type FieldMapper interface {
	FieldMappings() []FieldMapping
}

// ParentHolder is implemented by documents that may have a parent document.
type ParentHolder interface {
	Parent() Document
}

// FieldMapping is one declared field and its current value. Values that are a
// Document, a []Document or a []any holding Documents are relations; anything
// else is treated as a scalar.
type FieldMapping struct {
	Name  string
	Value any
}

// Entry is the plain Document implementation loaded by the content repository.
type Entry struct {
	ID       string
	NodePath string
	Lang     string
	Title    string
	Fields   []FieldMapping
	ParentOf Document
}

var (
	_ Document     = (*Entry)(nil)
	_ FieldMapper  = (*Entry)(nil)
	_ ParentHolder = (*Entry)(nil)
)

func (e *Entry) Identifier() string { return e.ID }

func (e *Entry) Path() string { return e.NodePath }

func (e *Entry) Locale() string { return e.Lang }

func (e *Entry) FieldMappings() []FieldMapping { return e.Fields }

func (e *Entry) Parent() Document {
	if e.ParentOf == nil {
		return nil
	}
	return e.ParentOf
}

// Key identifies a document within one locale.
func Key(doc Document) string {
	return doc.Locale() + ":" + doc.Identifier()
}
