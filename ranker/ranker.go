package ranker

import (
	"math"
	"sort"
	"strings"
	"time"

	"council-digest/normalize"
)

// RankedItem pairs an item with its computed score.
type RankedItem struct {
	normalize.Item
	Score float64
}

// Ranker scores items by recency, category weight, and keyword boosts.
// It holds only configuration, so ranking is a pure function of its
// inputs and the explicit now parameter.
type Ranker struct {
	categoryWeights map[string]float64
	boostTerms      []string
	boostAmount     float64
	halfLife        time.Duration
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithCategoryWeights sets per-category weights.
func WithCategoryWeights(weights map[string]float64) Option {
	return func(r *Ranker) {
		r.categoryWeights = weights
	}
}

// WithBoostTerms sets high-priority terms and the boost added when one
// appears in an item's title or excerpt.
func WithBoostTerms(terms []string, amount float64) Option {
	return func(r *Ranker) {
		r.boostTerms = terms
		r.boostAmount = amount
	}
}

// WithHalfLife sets the recency half-life: an item this old scores half
// the recency of a brand-new one.
func WithHalfLife(d time.Duration) Option {
	return func(r *Ranker) {
		r.halfLife = d
	}
}

// NewRanker creates a ranker.
func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{
		categoryWeights: map[string]float64{
			normalize.CategoryHearing: 3.0,
			normalize.CategoryVideo:   2.0,
			normalize.CategoryPress:   1.5,
			normalize.CategoryOther:   1.0,
		},
		boostAmount: 2.0,
		halfLife:    72 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Score computes an item's relevance at the given instant. Recency
// decays exponentially with the configured half-life and is scaled by
// the category weight; matching boost terms add a flat bonus.
func (r *Ranker) Score(item normalize.Item, now time.Time) float64 {
	age := now.Sub(item.When())
	if age < 0 {
		age = 0
	}

	recency := math.Exp2(-age.Hours() / r.halfLife.Hours())

	weight, ok := r.categoryWeights[item.Category]
	if !ok {
		weight = 1.0
	}

	score := recency * weight

	text := strings.ToLower(item.Title + " " + item.Excerpt)
	for _, term := range r.boostTerms {
		if strings.Contains(text, strings.ToLower(term)) {
			score += r.boostAmount
			break
		}
	}

	return score
}

// Rank scores and orders items: score descending, then more recent
// first, then content hash ascending. The final fallback makes the
// order reproducible across runs with identical inputs.
func (r *Ranker) Rank(items []normalize.Item, now time.Time) []RankedItem {
	if len(items) == 0 {
		return nil
	}

	ranked := make([]RankedItem, len(items))
	for i, item := range items {
		ranked[i] = RankedItem{Item: item, Score: r.Score(item, now)}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		ti, tj := ranked[i].When(), ranked[j].When()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ranked[i].ContentHash < ranked[j].ContentHash
	})

	return ranked
}
