package ingest

import "math/rand/v2"

// Picker chooses an index into a pool of n candidate ids. n is always > 0.
type Picker interface {
	Pick(n int) int
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(n int) int

func (f PickerFunc) Pick(n int) int { return f(n) }

// RandomPicker picks uniformly at random.
type RandomPicker struct {
	rng *rand.Rand
}

// NewRandomPicker returns a RandomPicker drawing from rng, or from the
// global source when rng is nil.
func NewRandomPicker(rng *rand.Rand) *RandomPicker {
	return &RandomPicker{rng: rng}
}

func (p *RandomPicker) Pick(n int) int {
	if p.rng == nil {
		return rand.IntN(n)
	}
	return p.rng.IntN(n)
}
