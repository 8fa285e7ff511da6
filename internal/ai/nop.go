package ai

import (
	"context"

	"github.com/amishk599/jobradar/internal/model"
)

// NopScorer is used when scoring.enabled is false and for dry runs. Jobs
// stay unscored and are picked up by a later run with scoring enabled.
type NopScorer struct{}

// NewNopScorer returns a NopScorer.
func NewNopScorer() *NopScorer {
	return &NopScorer{}
}

// Score always returns model.ErrScoringDisabled.
func (n *NopScorer) Score(context.Context, model.CanonicalJob) (model.FitResult, error) {
	return model.FitResult{}, model.ErrScoringDisabled
}
