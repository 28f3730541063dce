package faceauth

import (
	"context"
	"fmt"
	"math"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// Engine performs 1:N identification: exhaustive nearest-neighbor search of
// the probe against every stored embedding, with a distance threshold.
//
// The scan is brute force over one store snapshot. An identity matches via
// its single closest embedding; distances are never aggregated per identity.
// Ties on the exact minimum are broken by snapshot order (first encountered
// wins), which the Store contract fixes to enrollment order, so repeated
// calls over the same snapshot always return the same result.
type Engine struct {
	store Store
	dim   int
}

func NewEngine(store Store, dim int) *Engine {
	return &Engine{store: store, dim: dim}
}

// Identify finds the closest enrolled embedding to probe and applies the
// accept threshold. A probe of the wrong dimensionality is a configuration
// fault and returns an error, not a MatchResult.
func (e *Engine) Identify(ctx context.Context, probe models.EmbeddingVector, threshold float64) (models.MatchResult, error) {
	if len(probe) != e.dim {
		return models.MatchResult{}, fmt.Errorf("probe dimension %d does not match configured dimension %d", len(probe), e.dim)
	}

	population, err := e.store.AllEmbeddings(ctx)
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("load embeddings: %w", err)
	}
	observability.EnrolledEmbeddings.Set(float64(len(population)))

	result := models.MatchResult{Threshold: threshold}
	if len(population) == 0 {
		return result, nil
	}

	best := population[0]
	bestDist := l2Distance(probe, best.Vector)
	for _, cand := range population[1:] {
		// Strict < keeps the first-encountered minimum on exact ties.
		if d := l2Distance(probe, cand.Vector); d < bestDist {
			bestDist = d
			best = cand
		}
	}

	result.Distance = &bestDist
	observability.MatchDistance.Observe(bestDist)

	if bestDist <= threshold {
		id := best.IdentityID
		result.IdentityID = &id
	}
	return result, nil
}

// l2Distance returns the Euclidean distance between two vectors of equal
// length. Stored vectors are validated against the configured dimension at
// enrollment, so lengths agree by construction.
func l2Distance(a, b models.EmbeddingVector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
