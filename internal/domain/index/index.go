package index

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
)

var handleRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// SwapSuffix is appended to a production handle to name its swap generation.
const SwapSuffix = "_swap"

// BuildSwapHandle derives the swap generation handle. Pure and deterministic.
func BuildSwapHandle(handle string) string { return handle + SwapSuffix }

// EngineType identifies a search backend.
type EngineType string

// Supported engines.
const (
	Elasticsearch EngineType = "elasticsearch"
	OpenSearch    EngineType = "opensearch"
	Algolia       EngineType = "algolia"
	Meilisearch   EngineType = "meilisearch"
	Typesense     EngineType = "typesense"
)

// IsValid checks if the engine type is supported.
func (e EngineType) IsValid() bool {
	switch e {
	case Elasticsearch, OpenSearch, Algolia, Meilisearch, Typesense:
		return true
	}
	return false
}

// Mode says whether the index is written by sync or only queried.
type Mode string

const (
	// ModeSynced indexes are populated from the content store.
	ModeSynced Mode = "synced"
	// ModeReadOnly indexes are managed elsewhere and only queried.
	ModeReadOnly Mode = "read_only"
)

// IsValid checks if the mode is supported.
func (m Mode) IsValid() bool { return m == ModeSynced || m == ModeReadOnly }

// Scope restricts which content items an index holds. Empty lists match anything.
type Scope struct {
	SiteIDs    []string
	Categories []string
	Subtypes   []string
}

// Index is the search index aggregate (immutable value object).
type Index struct {
	handle     string
	engineType EngineType
	config     map[string]any
	mappings   []field.Mapping
	mode       Mode
	enabled    bool
	scope      Scope
	vectorDim  int
}

// Params groups Index constructor arguments.
type Params struct {
	Handle     string
	EngineType EngineType
	Config     map[string]any
	Mappings   []field.Mapping
	Mode       Mode
	Enabled    bool
	Scope      Scope
	VectorDim  int
}

// New validates and creates an Index.
func New(p Params) (Index, error) {
	if p.Handle == "" {
		return Index{}, fmt.Errorf("index handle is required")
	}
	if len(p.Handle) > 64 {
		return Index{}, fmt.Errorf("index handle too long (max 64)")
	}
	if !handleRegex.MatchString(p.Handle) {
		return Index{}, fmt.Errorf("index handle %q must be lowercase alphanumeric with underscores and hyphens", p.Handle)
	}
	if !p.EngineType.IsValid() {
		return Index{}, fmt.Errorf("invalid engine type: %q", p.EngineType)
	}
	if p.Mode == "" {
		p.Mode = ModeSynced
	}
	if !p.Mode.IsValid() {
		return Index{}, fmt.Errorf("invalid index mode: %q", p.Mode)
	}
	if p.Mode == ModeReadOnly && len(p.Mappings) > 0 {
		return Index{}, fmt.Errorf("read-only index %q cannot carry field mappings", p.Handle)
	}
	if err := validateMappings(p.Mappings); err != nil {
		return Index{}, err
	}
	if p.VectorDim < 0 {
		return Index{}, fmt.Errorf("vector dimension must not be negative")
	}
	return Reconstruct(p), nil
}

func validateMappings(ms []field.Mapping) error {
	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		if !m.Enabled() {
			continue
		}
		if document.IsReserved(m.Name()) {
			return fmt.Errorf("field name %q is reserved", m.Name())
		}
		if seen[m.Name()] {
			return fmt.Errorf("duplicate field name: %s", m.Name())
		}
		seen[m.Name()] = true
	}
	return nil
}

// Reconstruct creates an Index without validation (storage hydration).
func Reconstruct(p Params) Index {
	if p.Mode == "" {
		p.Mode = ModeSynced
	}
	return Index{
		handle:     p.Handle,
		engineType: p.EngineType,
		config:     p.Config,
		mappings:   field.Sorted(p.Mappings),
		mode:       p.Mode,
		enabled:    p.Enabled,
		scope:      p.Scope,
		vectorDim:  p.VectorDim,
	}
}

// Handle returns the index handle.
func (i Index) Handle() string { return i.handle }

// EngineType returns the backend type.
func (i Index) EngineType() EngineType { return i.engineType }

// Config returns a shallow copy of the opaque engine configuration.
func (i Index) Config() map[string]any {
	out := make(map[string]any, len(i.config))
	for k, v := range i.config {
		out[k] = v
	}
	return out
}

// Mappings returns all field mappings in sort order.
func (i Index) Mappings() []field.Mapping { return i.mappings }

// EnabledMappings returns enabled field mappings in sort order.
func (i Index) EnabledMappings() []field.Mapping { return field.EnabledOnly(i.mappings) }

// Mode returns the index mode.
func (i Index) Mode() Mode { return i.mode }

// IsReadOnly reports whether writes are forbidden.
func (i Index) IsReadOnly() bool { return i.mode == ModeReadOnly }

// Enabled reports whether the index is active.
func (i Index) Enabled() bool { return i.enabled }

// Writable reports whether sync may write to the index.
func (i Index) Writable() bool { return i.enabled && i.mode == ModeSynced }

// Scope returns the content scope filters.
func (i Index) Scope() Scope { return i.scope }

// VectorDim returns the embedding dimension used for embedding fields.
func (i Index) VectorDim() int { return i.vectorDim }

// SwapHandle returns the handle of this index's swap generation.
func (i Index) SwapHandle() string { return BuildSwapHandle(i.handle) }

// WithHandle returns a copy addressing another generation of the same index.
func (i Index) WithHandle(handle string) Index {
	i.handle = handle
	return i
}

// InScope reports whether a content item belongs in this index.
func (i Index) InScope(siteID, category, subtype string) bool {
	return matches(i.scope.SiteIDs, siteID) &&
		matches(i.scope.Categories, category) &&
		matches(i.scope.Subtypes, subtype)
}

func matches(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// FieldType resolves the type of an enabled mapping. The id and discriminator fields are keywords.
func (i Index) FieldType(name string) (field.Type, bool) {
	if document.IsReserved(name) {
		return field.Keyword, true
	}
	for _, m := range i.mappings {
		if m.Enabled() && m.Name() == name {
			return m.FieldType(), true
		}
	}
	return "", false
}

// IsText reports whether name is an enabled text field.
func (i Index) IsText(name string) bool {
	ft, ok := i.FieldType(name)
	return ok && ft == field.Text
}

// EmbeddingField returns the first enabled embedding mapping in sort order.
func (i Index) EmbeddingField() (string, bool) {
	for _, m := range i.mappings {
		if m.Enabled() && m.FieldType() == field.Embedding {
			return m.Name(), true
		}
	}
	return "", false
}

// SearchableFields returns enabled text mappings ordered by descending weight.
func (i Index) SearchableFields() []field.Mapping {
	return field.ByWeight(field.OfType(i.EnabledMappings(), field.Text))
}

// SyncState is a step of the bulk synchronization cycle.
type SyncState string

// Bulk cycle states: Idle → Populating → Swapped → Idle.
const (
	StateIdle       SyncState = "idle"
	StatePopulating SyncState = "populating"
	StateSwapped    SyncState = "swapped"
)
