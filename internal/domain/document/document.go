package document

import (
	"fmt"
	"strconv"
)

// Reserved keys present in every indexed document.
const (
	// KeyID carries the content id on every document and hit.
	KeyID = "objectID"
	// FieldCategory discriminates the content category (entry, category, asset...).
	FieldCategory = "content_category"
	// FieldSubtype discriminates the content subtype (section, group, volume...).
	FieldSubtype = "content_subtype"
)

// Discriminators lists the implicit fields injected into every document and schema.
var Discriminators = []string{FieldCategory, FieldSubtype}

// IsReserved reports whether name collides with a key the core manages itself.
func IsReserved(name string) bool {
	return name == KeyID || name == FieldCategory || name == FieldSubtype
}

// Document is the opaque field map produced by the resolver.
type Document map[string]any

// New creates a Document with the id pre-populated.
func New(id string) Document {
	return Document{KeyID: id}
}

// ID returns the document id as a string.
func (d Document) ID() string {
	switch v := d[KeyID].(type) {
	case string:
		return v
	case nil:
		return ""
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// WithDiscriminators returns a copy carrying the two implicit discriminator fields.
func (d Document) WithDiscriminators(category, subtype string) Document {
	out := d.Clone()
	out[FieldCategory] = category
	out[FieldSubtype] = subtype
	return out
}

// Without returns a copy without the given keys.
func (d Document) Without(keys ...string) Document {
	out := d.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
