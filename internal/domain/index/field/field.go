package field

import (
	"fmt"
	"regexp"
	"sort"
)

// Type is the engine-agnostic field type of a mapping.
type Type string

// Field type constants.
const (
	Text      Type = "text"
	Keyword   Type = "keyword"
	Integer   Type = "integer"
	Float     Type = "float"
	Boolean   Type = "boolean"
	Date      Type = "date"
	GeoPoint  Type = "geo_point"
	Facet     Type = "facet"
	Object    Type = "object"
	Embedding Type = "embedding"
)

// Types lists every supported field type.
var Types = []Type{Text, Keyword, Integer, Float, Boolean, Date, GeoPoint, Facet, Object, Embedding}

// Valid reports whether t belongs to the taxonomy.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// IsNumeric reports whether t holds numbers.
func (t Type) IsNumeric() bool { return t == Integer || t == Float }

// IsSortable reports whether engines that declare sortability up front need it for t.
func (t Type) IsSortable() bool {
	return t == Integer || t == Float || t == Date || t == GeoPoint
}

// Role is an optional semantic tag on a mapping (title, image, url...).
type Role string

// Well-known roles.
const (
	RoleNone    Role = ""
	RoleTitle   Role = "title"
	RoleSummary Role = "summary"
	RoleImage   Role = "image"
	RoleURL     Role = "url"
	RoleDate    Role = "date"
)

// Weight bounds.
const (
	MinWeight     = 1
	MaxWeight     = 10
	DefaultWeight = 5
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// Mapping binds a content field to an index field (immutable value object).
type Mapping struct {
	id        string
	name      string
	source    string
	fieldType Type
	weight    int
	enabled   bool
	role      Role
	sortOrder int
}

// Params groups Mapping constructor arguments.
type Params struct {
	ID        string
	Name      string
	Source    string
	Type      Type
	Weight    int
	Enabled   bool
	Role      Role
	SortOrder int
}

// New validates and creates a Mapping.
// Name must be non-empty, max 64 chars, identifier-like. Weight 0 defaults to 5, otherwise 1..10.
func New(p Params) (Mapping, error) {
	if p.Name == "" {
		return Mapping{}, fmt.Errorf("field name is required")
	}
	if len(p.Name) > 64 {
		return Mapping{}, fmt.Errorf("field name %q too long (max 64)", p.Name)
	}
	if !nameRegex.MatchString(p.Name) {
		return Mapping{}, fmt.Errorf("field name %q must start with a letter or underscore", p.Name)
	}
	if !p.Type.Valid() {
		return Mapping{}, fmt.Errorf("invalid field type %q for %q", p.Type, p.Name)
	}
	if p.Weight == 0 {
		p.Weight = DefaultWeight
	}
	if p.Weight < MinWeight || p.Weight > MaxWeight {
		return Mapping{}, fmt.Errorf("weight %d for %q out of range [%d, %d]", p.Weight, p.Name, MinWeight, MaxWeight)
	}
	return Reconstruct(p), nil
}

// Reconstruct creates a Mapping without validation (storage hydration).
func Reconstruct(p Params) Mapping {
	id := p.ID
	if id == "" {
		id = p.Name
	}
	source := p.Source
	if source == "" {
		source = p.Name
	}
	return Mapping{
		id:        id,
		name:      p.Name,
		source:    source,
		fieldType: p.Type,
		weight:    p.Weight,
		enabled:   p.Enabled,
		role:      p.Role,
		sortOrder: p.SortOrder,
	}
}

// ID returns the stable mapping id.
func (m Mapping) ID() string { return m.id }

// Name returns the index field name (document key).
func (m Mapping) Name() string { return m.name }

// Source returns the content field handle the value is read from.
func (m Mapping) Source() string { return m.source }

// FieldType returns the mapping's field type.
func (m Mapping) FieldType() Type { return m.fieldType }

// Weight returns the relevance weight (1..10).
func (m Mapping) Weight() int { return m.weight }

// Enabled reports whether the mapping takes part in documents and schemas.
func (m Mapping) Enabled() bool { return m.enabled }

// Role returns the semantic role tag.
func (m Mapping) Role() Role { return m.role }

// SortOrder returns the position in the index's field list.
func (m Mapping) SortOrder() int { return m.sortOrder }

// Sorted returns a copy ordered by sort order, then name.
func Sorted(ms []Mapping) []Mapping {
	out := append([]Mapping(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].sortOrder != out[j].sortOrder {
			return out[i].sortOrder < out[j].sortOrder
		}
		return out[i].name < out[j].name
	})
	return out
}

// ByWeight returns a copy ordered by descending weight, ties keep sort order.
func ByWeight(ms []Mapping) []Mapping {
	out := Sorted(ms)
	sort.SliceStable(out, func(i, j int) bool { return out[i].weight > out[j].weight })
	return out
}

// EnabledOnly filters out disabled mappings, preserving order.
func EnabledOnly(ms []Mapping) []Mapping {
	out := make([]Mapping, 0, len(ms))
	for _, m := range ms {
		if m.enabled {
			out = append(out, m)
		}
	}
	return out
}

// OfType filters mappings by type, preserving order.
func OfType(ms []Mapping, types ...Type) []Mapping {
	var out []Mapping
	for _, m := range ms {
		for _, t := range types {
			if m.fieldType == t {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
