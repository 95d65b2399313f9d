package docsync

import (
	"reflect"
	"time"
)

// RelationWalker discovers the documents directly reachable from a document.
type RelationWalker struct{}

// DirectRelations returns the documents referenced by doc's field mappings, in
// declaration order, followed by its parent. Scalars, scalar collections and
// dates are ignored, and each document is reported once. Relations of the
// returned documents are not followed.
func (RelationWalker) DirectRelations(doc Document) []Document {
	var related []Document
	seen := map[string]struct{}{}
	add := func(candidate Document) {
		if isNilDocument(candidate) {
			return
		}
		key := Key(candidate)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		related = append(related, candidate)
	}

	if mapper, ok := doc.(FieldMapper); ok {
		for _, field := range mapper.FieldMappings() {
			for _, candidate := range documentsIn(field.Value) {
				add(candidate)
			}
		}
	}
	if parent := ParentOf(doc); parent != nil {
		add(parent)
	}
	return related
}

// ParentOf returns doc's parent document or nil.
func ParentOf(doc Document) Document {
	holder, ok := doc.(ParentHolder)
	if !ok {
		return nil
	}
	parent := holder.Parent()
	if isNilDocument(parent) {
		return nil
	}
	return parent
}

var documentType = reflect.TypeFor[Document]()

// documentsIn collects the documents held by a field value: a document, or a
// slice or array whose elements are documents (e.g. []*Entry, []any).
func documentsIn(value any) []Document {
	switch v := value.(type) {
	case nil, time.Time, *time.Time:
		return nil
	case Document:
		return []Document{v}
	case []Document:
		return v
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	elem := rv.Type().Elem()
	if elem.Kind() != reflect.Interface && !elem.Implements(documentType) {
		return nil
	}
	var docs []Document
	for i := range rv.Len() {
		if doc, ok := rv.Index(i).Interface().(Document); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

func isNilDocument(doc Document) bool {
	if doc == nil {
		return true
	}
	rv := reflect.ValueOf(doc)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
