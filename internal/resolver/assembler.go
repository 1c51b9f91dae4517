package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/logger"
)

// Assembler builds engine documents from content items.
type Assembler struct {
	registry *Registry
	embed    domain.Embedder
}

// NewAssembler creates an assembler. embed vectorizes text for embedding
// mappings and may be nil, in which case those fields are omitted.
func NewAssembler(registry *Registry, embed domain.Embedder) *Assembler {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Assembler{registry: registry, embed: embed}
}

// Assemble resolves every enabled mapping of idx against item. A field that
// fails to resolve is logged and omitted; the document is still produced.
func (a *Assembler) Assemble(ctx context.Context, idx index.Index, item content.Item) (document.Document, error) {
	log := logger.FromContext(ctx).With(
		zap.String("index", idx.Handle()),
		zap.String("document_id", item.ID),
	)
	doc := document.New(item.ID)

	for _, m := range idx.EnabledMappings() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("assemble %s: %w", item.ID, err)
		}
		if document.IsReserved(m.Name()) {
			continue
		}
		fv, ok := item.Field(m.Source())
		if !ok {
			continue
		}

		v, err := a.resolve(ctx, m, fv)
		if err != nil {
			log.Warn("Field resolution failed",
				zap.String("field", m.Name()),
				zap.String("kind", fv.Kind),
				zap.Error(err),
			)
			continue
		}
		if v != nil {
			doc[m.Name()] = v
		}
	}

	return doc.WithDiscriminators(item.Category, item.Subtype), nil
}

func (a *Assembler) resolve(ctx context.Context, m field.Mapping, fv content.FieldValue) (any, error) {
	if m.FieldType() == field.Embedding {
		return a.embedField(ctx, m, fv)
	}
	v, err := a.registry.For(fv.Kind).Resolve(ctx, m, fv)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", fv.Kind, err)
	}
	return v, nil
}

// embedField resolves the source as text and embeds it. Non-string values are skipped.
func (a *Assembler) embedField(ctx context.Context, m field.Mapping, fv content.FieldValue) (any, error) {
	if a.embed == nil {
		return nil, nil
	}
	asText := field.Reconstruct(field.Params{Name: m.Name(), Source: m.Source(), Type: field.Text, Enabled: true})
	v, err := a.registry.For(fv.Kind).Resolve(ctx, asText, fv)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", fv.Kind, err)
	}
	text, ok := v.(string)
	if !ok || text == "" {
		return nil, nil
	}
	res, err := a.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return res.Embedding, nil
}
