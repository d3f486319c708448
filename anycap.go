// Package anycap provides the shared types for training
// caption generators that are conditioned on an article
// and an image.
//
// The sub-packages implement the training loop (anytrain),
// optimizers (anysgd), evaluation (anyeval), checkpoints
// (anyckpt), data loading (anydata), metric sinks
// (anylog), and a small reference model (anyref).
package anycap

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Parameterizer is anything with learnable variables.
//
// The parameters of a Parameterizer must be in the same
// order every time Parameters() is called.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// An ImageEncoder is the part of a Model that turns image
// tensors into features.
//
// Some of its parameters may be frozen (e.g. a pretrained
// backbone), in which case no optimizer updates them.
type ImageEncoder interface {
	Parameterizer

	// Frozen reports whether a parameter is excluded from
	// training.
	Frozen(p *anydiff.Var) bool
}

// A Model generates captions for an article and an image.
type Model interface {
	// Parameters returns every parameter of the model,
	// including the parameters of the image encoder.
	Parameters() []*anydiff.Var

	// Encoder returns the image encoder, whose trainable
	// parameters are driven by a separate optimizer.
	Encoder() ImageEncoder

	// SetTraining switches between training mode (e.g. with
	// dropout) and inference mode.
	SetTraining(training bool)

	// VocabSize is the size of the output distribution.
	VocabSize() int

	// Forward runs a pass over the batch which feeds the
	// reference captions to the decoder.
	//
	// The result contains log-probabilities for every
	// caption position, packed example-major:
	// b.Size() * b.CaptionLen() rows of VocabSize()
	// columns.
	Forward(b *Batch) anydiff.Res

	// StartDecode prepares autoregressive decoding for the
	// articles and images in the batch.
	// Caption fields of the batch are not used.
	StartDecode(b *Batch) DecodeState
}

// A DecodeState advances autoregressive decoding one token
// at a time.
type DecodeState interface {
	// Next consumes the previous token for every example
	// and returns the log-probabilities of the next token,
	// packed as len(prev) rows of VocabSize() columns.
	Next(prev []int) anyvec.Vector
}

// A Vocab maps token ids back to text.
type Vocab interface {
	StartID() int
	EndID() int
	PadID() int

	// Decode turns token ids into a caption string.
	// Special tokens are dropped.
	Decode(ids []int) string
}

// TrainableParameters returns the parameters of m which
// are not frozen by its image encoder.
func TrainableParameters(m Model) []*anydiff.Var {
	enc := m.Encoder()
	var res []*anydiff.Var
	for _, p := range m.Parameters() {
		if enc == nil || !enc.Frozen(p) {
			res = append(res, p)
		}
	}
	return res
}

// CountParameters counts the scalar parameters of m, both
// in total and excluding frozen encoder parameters.
func CountParameters(m Model) (total, trainable int) {
	for _, p := range m.Parameters() {
		total += p.Vector.Len()
	}
	for _, p := range TrainableParameters(m) {
		trainable += p.Vector.Len()
	}
	return
}
