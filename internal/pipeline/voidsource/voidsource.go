// Package voidsource implements the void Source named in the data
// model's source_type enumeration: it emits nothing and finalizes
// immediately, used for index-creation smoke tests and as a
// placeholder source for indexes with no live ingestion configured.
package voidsource

import (
	"context"

	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/pipeline"
)

// Source never produces a batch and reports EOF on its very first poll.
type Source struct {
	polled bool
}

// New returns a void source.
func New() *Source { return &Source{} }

var _ pipeline.Source = (*Source)(nil)

func (s *Source) Poll(_ context.Context) (*pipeline.Batch, bool, error) {
	s.polled = true
	return nil, false, nil
}

func (s *Source) SuggestTruncate(_ context.Context, _ model.Position) error { return nil }
func (s *Source) Finalize(_ context.Context) error                          { return nil }
func (s *Source) EOF() bool                                                 { return s.polled }
