// Package ledger - In-memory tally of disposed waste weight per category.
package ledger

import (
	"math"
	"sync"

	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

// ErrInvalidWeight is returned for negative, NaN or infinite weights.
var ErrInvalidWeight = errors.New("invalid weight")

// Summary is a point-in-time view of the ledger.
type Summary struct {
	// Weights holds the accumulated kilograms for every category of the taxonomy.
	Weights map[waste.Category]float64 `json:"weights"`
	// TotalWeight is the sum of Weights.
	TotalWeight float64 `json:"total_weight"`
}

// Ledger accumulates weight per category. It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	taxonomy *waste.Taxonomy
	weights  map[waste.Category]float64
}

// New creates a ledger with every category of the taxonomy at zero.
//
// Arguments:
//   - taxonomy: The category set the ledger tracks.
//
// Returns:
//   - *Ledger: The empty ledger.
func New(taxonomy *waste.Taxonomy) *Ledger {
	l := &Ledger{
		taxonomy: taxonomy,
		weights:  make(map[waste.Category]float64, len(taxonomy.Categories())),
	}
	l.zero()
	return l
}

// Taxonomy returns the category set the ledger tracks.
func (l *Ledger) Taxonomy() *waste.Taxonomy {
	return l.taxonomy
}

// Add adds kg to the category named by name. Aliases of the taxonomy are honoured.
//
// Arguments:
//   - name: The category name or alias.
//   - kg: The weight to add. Must be finite and non-negative.
//
// Returns:
//   - float64: The new total for the category.
//   - error: waste.ErrUnknownCategory or ErrInvalidWeight.
func (l *Ledger) Add(name string, kg float64) (float64, error) {
	category, err := l.validate(name, kg)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.weights[category] += kg
	return l.weights[category], nil
}

// Reset sets every category back to zero.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.zero()
}

// Summary returns a copy of the weights and their total.
//
// Returns:
//   - Summary: The snapshot. The total is recomputed from the copied weights.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.summaryLocked()
}

// AddSummary adds kg like Add and returns the resulting summary from the same critical section.
func (l *Ledger) AddSummary(name string, kg float64) (Summary, error) {
	category, err := l.validate(name, kg)
	if err != nil {
		return Summary{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.weights[category] += kg
	return l.summaryLocked(), nil
}

// ResetSummary resets the ledger and returns the all-zero summary.
func (l *Ledger) ResetSummary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.zero()
	return l.summaryLocked()
}

func (l *Ledger) validate(name string, kg float64) (waste.Category, error) {
	category, err := l.taxonomy.Lookup(name)
	if err != nil {
		return "", err
	}
	if kg < 0 || math.IsNaN(kg) || math.IsInf(kg, 0) {
		return "", errors.Wrapf(ErrInvalidWeight, "weight %v for %s", kg, category)
	}
	return category, nil
}

func (l *Ledger) summaryLocked() Summary {
	s := Summary{Weights: make(map[waste.Category]float64, len(l.weights))}
	for _, c := range l.taxonomy.Categories() {
		w := l.weights[c]
		s.Weights[c] = w
		s.TotalWeight += w
	}
	return s
}

func (l *Ledger) zero() {
	for _, c := range l.taxonomy.Categories() {
		l.weights[c] = 0
	}
}
