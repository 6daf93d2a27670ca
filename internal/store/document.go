package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

const (
	fieldID        = "id"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

type fields map[string]json.RawMessage

func decodeFields(doc Document) (fields, error) {
	var out fields
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("%w: document is not a JSON object: %v", ErrValidation, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: document is null", ErrValidation)
	}
	return out, nil
}

func (f fields) set(key string, value any) {
	raw, _ := json.Marshal(value)
	f[key] = raw
}

func (f fields) str(key string) string {
	var s string
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (f fields) timestamp(key string) time.Time {
	var t time.Time
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, &t)
	}
	return t
}

// Prepare readies doc for insertion: it keeps a non-empty "id" or assigns one
// from newID, keeps a non-zero "created_at" and always stamps "updated_at".
func Prepare(doc Document, now time.Time, newID func() string) (Document, string, error) {
	f, err := decodeFields(doc)
	if err != nil {
		return nil, "", err
	}
	id := f.str(fieldID)
	if id == "" {
		id = newID()
		f.set(fieldID, id)
	}
	if f.timestamp(fieldCreatedAt).IsZero() {
		f.set(fieldCreatedAt, now)
	}
	f.set(fieldUpdatedAt, now)
	out, err := json.Marshal(f)
	if err != nil {
		return nil, "", err
	}
	return out, id, nil
}

// Merge applies patch on top of doc key by key. "id" and "created_at" cannot be
// patched; "updated_at" is set to now.
func Merge(doc Document, patch Document, now time.Time) (Document, error) {
	base, err := decodeFields(doc)
	if err != nil {
		return nil, err
	}
	changes, err := decodeFields(patch)
	if err != nil {
		return nil, err
	}
	for key, value := range changes {
		if key == fieldID || key == fieldCreatedAt {
			continue
		}
		base[key] = value
	}
	base.set(fieldUpdatedAt, now)
	return json.Marshal(base)
}

// ID returns the "id" of doc, or "" when doc has none.
func ID(doc Document) string {
	f, err := decodeFields(doc)
	if err != nil {
		return ""
	}
	return f.str(fieldID)
}

// CreatedAt returns the "created_at" stamp of doc.
func CreatedAt(doc Document) time.Time {
	f, err := decodeFields(doc)
	if err != nil {
		return time.Time{}
	}
	return f.timestamp(fieldCreatedAt)
}

// FieldEquals reports whether the top-level field of doc equals value once both
// are seen as JSON values.
func FieldEquals(doc Document, field string, value any) bool {
	f, err := decodeFields(doc)
	if err != nil {
		return false
	}
	raw, ok := f[field]
	if !ok {
		return false
	}
	want, err := json.Marshal(value)
	if err != nil {
		return false
	}
	var a, b any
	if json.Unmarshal(raw, &a) != nil || json.Unmarshal(want, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Clone copies doc so callers can never alias a stored buffer.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return append(Document(nil), doc...)
}
