package anyref

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Linear is a fully-connected layer.
// Biases may be nil for a weight-only transformation.
type Linear struct {
	InCount  int
	OutCount int
	Weights  *anydiff.Var
	Biases   *anydiff.Var
}

// NewLinear creates a Linear layer with Xavier-uniform
// weights and zero biases.
func NewLinear(c anyvec.Creator, gen *rand.Rand, in, out int, bias bool) *Linear {
	res := &Linear{
		InCount:  in,
		OutCount: out,
		Weights:  anydiff.NewVar(c.MakeVector(in * out)),
	}
	limit := math.Sqrt(6 / float64(in+out))
	anyvec.Rand(res.Weights.Vector, anyvec.Uniform, gen)
	res.Weights.Vector.Scale(c.MakeNumeric(2 * limit))
	res.Weights.Vector.AddScalar(c.MakeNumeric(-limit))
	if bias {
		res.Biases = anydiff.NewVar(c.MakeVector(out))
	}
	return res
}

// Apply applies the layer to a batch of row vectors.
func (l *Linear) Apply(in anydiff.Res, batch int) anydiff.Res {
	if batch*l.InCount != in.Output().Len() {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			batch*l.InCount, in.Output().Len()))
	}
	weightMat := &anydiff.Matrix{Data: l.Weights, Rows: l.OutCount, Cols: l.InCount}
	inMat := &anydiff.Matrix{Data: in, Rows: batch, Cols: l.InCount}
	weighted := anydiff.MatMul(false, true, inMat, weightMat).Data
	if l.Biases == nil {
		return weighted
	}
	return anydiff.AddRepeated(weighted, l.Biases)
}

// Parameters returns the weights and the biases, if there
// are any.
func (l *Linear) Parameters() []*anydiff.Var {
	if l.Biases == nil {
		return []*anydiff.Var{l.Weights}
	}
	return []*anydiff.Var{l.Weights, l.Biases}
}

// Dropout randomly zeroes inputs while training.
// In inference mode it scales its input to compute the
// expected output.
type Dropout struct {
	Enabled  bool
	KeepProb float64

	// Rand generates masks.
	Rand *rand.Rand
}

// Apply applies dropout.
func (d *Dropout) Apply(in anydiff.Res) anydiff.Res {
	if d.KeepProb >= 1 {
		return in
	}
	c := in.Output().Creator()
	if !d.Enabled {
		return anydiff.Scale(in, c.MakeNumeric(d.KeepProb))
	}
	mask := c.MakeVector(in.Output().Len())
	anyvec.Rand(mask, anyvec.Uniform, d.Rand)
	anyvec.LessThan(mask, c.MakeNumeric(d.KeepProb))
	return anydiff.Mul(in, anydiff.NewConst(mask))
}

// Embedding maps token ids to learned vectors.
type Embedding struct {
	Vocab int
	Dim   int
	Table *anydiff.Var
}

// NewEmbedding creates an Embedding with normally
// distributed entries.
func NewEmbedding(c anyvec.Creator, gen *rand.Rand, vocab, dim int) *Embedding {
	res := &Embedding{
		Vocab: vocab,
		Dim:   dim,
		Table: anydiff.NewVar(c.MakeVector(vocab * dim)),
	}
	anyvec.Rand(res.Table.Vector, anyvec.Normal, gen)
	res.Table.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(dim))))
	return res
}

// Lookup returns the embeddings of the ids, packed as
// len(ids) rows.
func (e *Embedding) Lookup(ids []int) anydiff.Res {
	c := e.Table.Vector.Creator()
	oneHot := anydiff.NewConst(OneHot(c, ids, e.Vocab))
	return anydiff.MatMul(false, false,
		&anydiff.Matrix{Data: oneHot, Rows: len(ids), Cols: e.Vocab},
		&anydiff.Matrix{Data: e.Table, Rows: e.Vocab, Cols: e.Dim},
	).Data
}

// OneHot packs one-hot rows for the ids.
func OneHot(c anyvec.Creator, ids []int, size int) anyvec.Vector {
	data := make([]float64, len(ids)*size)
	for i, id := range ids {
		if id < 0 || id >= size {
			panic(fmt.Sprintf("token %d out of range [0, %d)", id, size))
		}
		data[i*size+id] = 1
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}
