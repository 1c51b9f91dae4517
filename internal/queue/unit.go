// Package queue defines job units, the durable queue contract and the worker that drains it.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the unit-of-work type.
type Kind string

// Unit kinds.
const (
	KindUpsert  Kind = "upsert_document"
	KindDelete  Kind = "delete_document"
	KindImport  Kind = "import_batch"
	KindCleanup Kind = "cleanup_orphans"
	KindSwap    Kind = "swap_index"
)

// Kinds lists every kind, in pipeline order.
var Kinds = []Kind{KindUpsert, KindDelete, KindImport, KindCleanup, KindSwap}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsTrailer reports whether units of this kind close a generation.
func (k Kind) IsTrailer() bool { return k == KindCleanup || k == KindSwap }

// Unit is one idempotent work item. It is JSON-encoded on the wire.
type Unit struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Index string `json:"index"`
	// Target overrides the engine handle written to (the swap generation).
	Target     string    `json:"target,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	SiteID     string    `json:"siteId,omitempty"`
	Offset     int       `json:"offset,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Generation string    `json:"generation,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func newUnit(kind Kind, index string) Unit {
	return Unit{ID: uuid.NewString(), Kind: kind, Index: index, EnqueuedAt: time.Now().UTC()}
}

// NewUpsert creates a single-document upsert unit.
func NewUpsert(index, documentID, siteID string) Unit {
	u := newUnit(KindUpsert, index)
	u.DocumentID, u.SiteID = documentID, siteID
	return u
}

// NewDelete creates a single-document delete unit.
func NewDelete(index, documentID, siteID string) Unit {
	u := newUnit(KindDelete, index)
	u.DocumentID, u.SiteID = documentID, siteID
	return u
}

// NewImportBatch creates a batch unit over the source window [offset, offset+limit).
func NewImportBatch(index, target string, offset, limit int) Unit {
	u := newUnit(KindImport, index)
	u.Target, u.Offset, u.Limit = target, offset, limit
	return u
}

// NewCleanup creates an orphan-cleanup unit.
func NewCleanup(index string) Unit { return newUnit(KindCleanup, index) }

// NewSwap creates a unit that promotes swapHandle to production.
func NewSwap(index, swapHandle string) Unit {
	u := newUnit(KindSwap, index)
	u.Target = swapHandle
	return u
}

// TargetHandle returns the engine handle the unit writes to.
func (u Unit) TargetHandle() string {
	if u.Target != "" {
		return u.Target
	}
	return u.Index
}

// Validate checks the fields each kind requires.
func (u Unit) Validate() error {
	if u.ID == "" || u.Index == "" {
		return errors.New("unit id and index are required")
	}
	switch u.Kind {
	case KindUpsert, KindDelete:
		if u.DocumentID == "" {
			return fmt.Errorf("%s unit requires a document id", u.Kind)
		}
	case KindImport:
		if u.Offset < 0 || u.Limit <= 0 {
			return fmt.Errorf("import unit has invalid window %d+%d", u.Offset, u.Limit)
		}
	case KindSwap:
		if u.Target == "" {
			return errors.New("swap unit requires a target handle")
		}
	case KindCleanup:
	default:
		return fmt.Errorf("unknown unit kind %q", u.Kind)
	}
	return nil
}
