package anyeval

import (
	"github.com/unixpickle/anycap"
)

// A Hypothesis is a generated caption for an image.
type Hypothesis struct {
	ImageID string `json:"image_id"`
	Caption string `json:"caption"`
}

// Greedy decodes captions by repeatedly feeding the most
// likely token back into the model.
type Greedy struct {
	Vocab anycap.Vocab

	// MaxLen, if non-zero, limits every caption to MaxLen
	// tokens.
	// Otherwise, each example is limited to its reference
	// caption length minus the start and end tokens.
	MaxLen int
}

// Decode generates one hypothesis per example in the
// batch.
//
// Decoding of an example stops at the end token or when
// the example's maximum length is reached.
func (g *Greedy) Decode(m anycap.Model, b *anycap.Batch) []Hypothesis {
	tokens := g.DecodeIDs(m, b)
	res := make([]Hypothesis, len(tokens))
	for i, ids := range tokens {
		res[i] = Hypothesis{ImageID: b.ImageIDs[i], Caption: g.Vocab.Decode(ids)}
	}
	return res
}

// DecodeIDs is like Decode, but it returns token ids.
// The end token is not included.
func (g *Greedy) DecodeIDs(m anycap.Model, b *anycap.Batch) [][]int {
	n := b.Size()
	limits := g.limits(b)
	var steps int
	for _, l := range limits {
		if l > steps {
			steps = l
		}
	}

	state := m.StartDecode(b)
	vocab := m.VocabSize()
	prev := make([]int, n)
	for i := range prev {
		prev[i] = g.Vocab.StartID()
	}
	done := make([]bool, n)
	res := make([][]int, n)
	for step := 0; step < steps; step++ {
		logProbs := anycap.Float64s(state.Next(prev))
		remaining := 0
		for i := 0; i < n; i++ {
			if done[i] {
				prev[i] = g.Vocab.EndID()
				continue
			}
			next := argMax(logProbs[i*vocab : (i+1)*vocab])
			prev[i] = next
			if next == g.Vocab.EndID() {
				done[i] = true
				continue
			}
			res[i] = append(res[i], next)
			if len(res[i]) >= limits[i] {
				done[i] = true
			} else {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}
	}
	return res
}

func (g *Greedy) limits(b *anycap.Batch) []int {
	res := b.DecodeLengths()
	for i, l := range res {
		if g.MaxLen != 0 {
			res[i] = g.MaxLen
		} else if l < 1 {
			res[i] = 1
		}
	}
	return res
}

func argMax(values []float64) int {
	var best int
	for i, x := range values {
		if x > values[best] {
			best = i
		}
	}
	return best
}
