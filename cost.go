package anycap

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// CrossEntropy is the caption loss: the mean negative
// log-likelihood of the target caption ids.
type CrossEntropy struct {
	// MaskPadding excludes positions whose caption mask is
	// zero from both the sum and the mean.
	// If false, every padded position is scored against
	// its (pad) target id.
	MaskPadding bool
}

// Loss computes the mean cross-entropy of the packed
// log-probabilities against the batch's caption ids.
//
// The logProbs argument must contain b.Size()*b.CaptionLen()
// rows of vocab columns, example-major.
func (c CrossEntropy) Loss(logProbs anydiff.Res, b *Batch, vocab int) anydiff.Res {
	rows := b.Size() * b.CaptionLen()
	if logProbs.Output().Len() != rows*vocab {
		panic(fmt.Sprintf("log-probabilities should have %d values, but got %d",
			rows*vocab, logProbs.Output().Len()))
	}
	var mask []float64
	if c.MaskPadding {
		mask = Float64s(b.CaptionMask)
	}
	table := make([]int, 0, rows)
	var row int
	for _, ids := range b.CaptionIDs {
		for _, id := range ids {
			if mask == nil || mask[row] != 0 {
				if id < 0 || id >= vocab {
					panic(fmt.Sprintf("target id %d out of range [0, %d)", id, vocab))
				}
				table = append(table, row*vocab+id)
			}
			row++
		}
	}

	cr := logProbs.Output().Creator()
	if len(table) == 0 {
		return anydiff.NewConst(cr.MakeVector(1))
	}
	total := anydiff.Sum(Gather(logProbs, table))
	return anydiff.Scale(total, cr.MakeNumeric(-1/float64(len(table))))
}

// Gather selects the components of in at the given
// indices.
//
// Indices must be distinct.
func Gather(in anydiff.Res, indices []int) anydiff.Res {
	c := in.Output().Creator()
	mapper := c.MakeMapper(in.Output().Len(), indices)
	out := c.MakeVector(len(indices))
	mapper.Map(in.Output(), out)
	return &gatherRes{In: in, Mapper: mapper, OutVec: out}
}

type gatherRes struct {
	In     anydiff.Res
	Mapper anyvec.Mapper
	OutVec anyvec.Vector
}

func (g *gatherRes) Output() anyvec.Vector {
	return g.OutVec
}

func (g *gatherRes) Vars() anydiff.VarSet {
	return g.In.Vars()
}

func (g *gatherRes) Propagate(u anyvec.Vector, grad anydiff.Grad) {
	down := u.Creator().MakeVector(g.Mapper.InSize())
	g.Mapper.MapTranspose(u, down)
	g.In.Propagate(down, grad)
}

// ScalarValue reads the value of a single-component
// result.
func ScalarValue(r anydiff.Res) float64 {
	return Float64(anyvec.Sum(r.Output()))
}
