package storage

import (
	"context"

	"gramforge/internal/model"
)

// Store persists generated individuals and the runs that produced them.
type Store interface {
	Init(ctx context.Context) error
	SaveIndividual(ctx context.Context, record model.IndividualRecord) error
	GetIndividual(ctx context.Context, id string) (model.IndividualRecord, bool, error)
	// ListIndividuals returns the individuals of a run ordered by index.
	ListIndividuals(ctx context.Context, runID string) ([]model.IndividualRecord, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
}
