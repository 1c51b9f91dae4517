package esfamily

import (
	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

const (
	keywordSubfield = "keyword"
	dateFormat      = "strict_date_optional_time||epoch_second"
)

// keywordField addresses the exact-match subfield of a text field.
func keywordField(name string) string { return name + "." + keywordSubfield }

// MapFieldType returns the native mapping of a field type.
func (a *Adapter) MapFieldType(t field.Type) any {
	return a.mapping(t, DefaultVectorDim)
}

func (a *Adapter) mapping(t field.Type, dims int) map[string]any {
	switch t {
	case field.Text:
		return map[string]any{
			"type": "text",
			"fields": map[string]any{
				keywordSubfield: map[string]any{"type": "keyword", "ignore_above": 256},
			},
		}
	case field.Keyword, field.Facet:
		return map[string]any{"type": "keyword"}
	case field.Integer:
		return map[string]any{"type": "long"}
	case field.Float:
		return map[string]any{"type": "double"}
	case field.Boolean:
		return map[string]any{"type": "boolean"}
	case field.Date:
		return map[string]any{"type": "date", "format": dateFormat}
	case field.GeoPoint:
		return map[string]any{"type": "geo_point"}
	case field.Object:
		return map[string]any{"type": "object"}
	case field.Embedding:
		return a.flavor.VectorMapping(dims)
	default:
		return map[string]any{"type": "keyword"}
	}
}

// BuildSchema returns the create-index body: mappings and optional settings.
// Discriminator fields are always mapped as keywords.
func (a *Adapter) BuildSchema(idx index.Index) map[string]any {
	dims := idx.VectorDim()
	if dims <= 0 {
		dims = DefaultVectorDim
	}

	props := map[string]any{}
	hasVector := false
	for _, m := range idx.EnabledMappings() {
		props[m.Name()] = a.mapping(m.FieldType(), dims)
		if m.FieldType() == field.Embedding {
			hasVector = true
		}
	}
	for _, d := range document.Discriminators {
		props[d] = map[string]any{"type": "keyword"}
	}

	schema := map[string]any{
		"mappings": map[string]any{"properties": props},
	}
	if settings := a.flavor.IndexSettings(hasVector); settings != nil {
		schema["settings"] = settings
	}
	return schema
}
