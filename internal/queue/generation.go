package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Generation is one bulk cycle: independent batch units followed by exactly one
// trailing cleanup or swap unit. It is submitted indivisibly.
type Generation struct {
	Index   string
	ID      string
	Batches []Unit
	Trailer Unit
}

// NewGeneration stamps a fresh generation id on every unit.
func NewGeneration(index string, batches []Unit, trailer Unit) (Generation, error) {
	if !trailer.Kind.IsTrailer() {
		return Generation{}, fmt.Errorf("generation trailer must be cleanup or swap, got %q", trailer.Kind)
	}
	id := uuid.NewString()
	stamped := make([]Unit, len(batches))
	for i, b := range batches {
		if b.Kind != KindImport {
			return Generation{}, errors.New("generation batches must be import units")
		}
		b.Generation = id
		stamped[i] = b
	}
	trailer.Generation = id
	return Generation{Index: index, ID: id, Batches: stamped, Trailer: trailer}, nil
}

// Units returns batches then the trailer, the order they are enqueued in.
func (g Generation) Units() []Unit {
	out := make([]Unit, 0, len(g.Batches)+1)
	out = append(out, g.Batches...)
	return append(out, g.Trailer)
}
