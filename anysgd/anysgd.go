// Package anysgd provides the optimizers used to train
// caption models.
//
// An Optimizer couples a gradient Transformer (such as
// Adam) with a learning rate and the parameters it
// updates.
// A Coordinator drives the two optimizers of a caption
// model: one for the model body and one for the image
// encoder.
package anysgd

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// An Optimizer updates a fixed list of parameters.
type Optimizer struct {
	// Params are the variables this optimizer updates.
	Params []*anydiff.Var

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer TransformMarshaler

	// LearningRate scales every step.
	LearningRate float64
}

// NewAdam creates an Adam optimizer for the parameters.
func NewAdam(params []*anydiff.Var, lr float64) *Optimizer {
	return &Optimizer{
		Params:       params,
		Transformer:  &Adam{Vars: params},
		LearningRate: lr,
	}
}

// NewAdamFiltered creates an Adam optimizer for the
// parameters which keep accepts.
// The predicate is evaluated once, at construction time.
func NewAdamFiltered(params []*anydiff.Var, keep func(p *anydiff.Var) bool,
	lr float64) *Optimizer {
	var kept []*anydiff.Var
	for _, p := range params {
		if keep(p) {
			kept = append(kept, p)
		}
	}
	return NewAdam(kept, lr)
}

// ZeroGrad adds a zero gradient for every parameter of the
// optimizer to g, replacing existing entries.
func (o *Optimizer) ZeroGrad(g anydiff.Grad) {
	for _, p := range o.Params {
		g[p] = p.Vector.Creator().MakeVector(p.Vector.Len())
	}
}

// Step updates the parameters using their entries in g.
//
// The entries of g which belong to o may be modified.
func (o *Optimizer) Step(g anydiff.Grad) {
	sub := subGrad(g, o.Params)
	if len(sub) == 0 {
		return
	}
	if o.Transformer != nil {
		sub = o.Transformer.Transform(sub)
	}
	scaleGrad(sub, -o.LearningRate)
	sub.AddToVars()
}

// MarshalBinary encodes the learning rate and the state
// of the transformer.
func (o *Optimizer) MarshalBinary() ([]byte, error) {
	var transData []byte
	if o.Transformer != nil {
		var err error
		transData, err = o.Transformer.MarshalBinary()
		if err != nil {
			return nil, essentials.AddCtx("marshal optimizer", err)
		}
	}
	return serializer.SerializeAny(
		serializer.Float64(o.LearningRate),
		serializer.Bytes(transData),
	)
}

// UnmarshalBinary restores the learning rate and the
// transformer state.
// If o.Transformer is nil, an Adam transformer is created
// for o.Params.
func (o *Optimizer) UnmarshalBinary(data []byte) error {
	var lr serializer.Float64
	var transData serializer.Bytes
	if err := serializer.DeserializeAny(data, &lr, &transData); err != nil {
		return essentials.AddCtx("unmarshal optimizer", err)
	}
	if o.Transformer == nil {
		o.Transformer = &Adam{Vars: o.Params}
	}
	if len(transData) > 0 {
		if err := o.Transformer.UnmarshalBinary(transData); err != nil {
			return essentials.AddCtx("unmarshal optimizer", err)
		}
	}
	o.LearningRate = float64(lr)
	return nil
}
