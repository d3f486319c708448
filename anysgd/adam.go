package anysgd

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	adamDefaultDecayRate1 = 0.9
	adamDefaultDecayRate2 = 0.999
	adamDefaultDamping    = 1e-8
)

// Adam implements the adaptive moments SGD technique
// described in https://arxiv.org/pdf/1412.6980.pdf.
type Adam struct {
	// These are decay rates for the first and second
	// moments of the gradient.
	// If these are 0, defaults as suggested in the
	// original Adam paper are used.
	DecayRate1, DecayRate2 float64

	// Damping is used to prevent divisions by zero.
	// This should be very small.
	// If it is 0, a default is used.
	Damping float64

	// Vars lists the variables whose moments are tracked,
	// in the order used by MarshalBinary.
	// It must be set before marshalling or unmarshalling.
	Vars []*anydiff.Var

	firstMoment  anydiff.Grad
	secondMoment anydiff.Grad
	iteration    float64
}

// Transform turns the gradient into an Adam step
// direction, in place.
func (a *Adam) Transform(realGrad anydiff.Grad) anydiff.Grad {
	a.updateMoments(realGrad)

	a.iteration++
	scalingFactor := math.Sqrt(1-math.Pow(a.decayRate(2), a.iteration)) /
		(1 - math.Pow(a.decayRate(1), a.iteration))
	damping := a.damping()
	for variable, vec := range realGrad {
		firstVec := a.firstMoment[variable]
		secondVec := a.secondMoment[variable]

		vec.Set(firstVec)
		vec.Scale(vec.Creator().MakeNumeric(scalingFactor))

		divisor := secondVec.Copy()
		anyvec.Pow(divisor, divisor.Creator().MakeNumeric(0.5))
		divisor.AddScalar(divisor.Creator().MakeNumeric(damping))
		vec.Div(divisor)
	}

	return realGrad
}

// Iteration returns the number of steps taken so far.
func (a *Adam) Iteration() int {
	return int(a.iteration)
}

// MarshalBinary encodes the hyperparameters and moment
// estimates of the optimizer.
func (a *Adam) MarshalBinary() ([]byte, error) {
	first, err := marshalGradient(a.Vars, a.firstMoment)
	if err != nil {
		return nil, essentials.AddCtx("marshal Adam", err)
	}
	second, err := marshalGradient(a.Vars, a.secondMoment)
	if err != nil {
		return nil, essentials.AddCtx("marshal Adam", err)
	}
	return serializer.SerializeAny(
		serializer.Float64(a.DecayRate1),
		serializer.Float64(a.DecayRate2),
		serializer.Float64(a.Damping),
		serializer.Float64(a.iteration),
		serializer.Bytes(first),
		serializer.Bytes(second),
	)
}

// UnmarshalBinary restores the optimizer from data
// produced by MarshalBinary.
// The moments are matched to a.Vars.
func (a *Adam) UnmarshalBinary(data []byte) error {
	var d1, d2, damping, iter serializer.Float64
	var first, second serializer.Bytes
	err := serializer.DeserializeAny(data, &d1, &d2, &damping, &iter, &first, &second)
	if err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	firstMoment, err := unmarshalGradient(a.Vars, first)
	if err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	secondMoment, err := unmarshalGradient(a.Vars, second)
	if err != nil {
		return essentials.AddCtx("unmarshal Adam", err)
	}
	if (firstMoment == nil) != (secondMoment == nil) {
		return errors.New("unmarshal Adam: incomplete moments")
	}
	a.DecayRate1 = float64(d1)
	a.DecayRate2 = float64(d2)
	a.Damping = float64(damping)
	a.iteration = float64(iter)
	a.firstMoment = firstMoment
	a.secondMoment = secondMoment
	return nil
}

func (a *Adam) updateMoments(grad anydiff.Grad) {
	if a.firstMoment == nil {
		a.firstMoment = copyGrad(grad)
		scaleGrad(a.firstMoment, 1-a.decayRate(1))
	} else {
		decayRate := a.decayRate(1)
		scaleGrad(a.firstMoment, decayRate)

		keepRate := 1 - decayRate
		for variable, vec := range grad {
			momentVec := a.firstMoment[variable]
			v := vec.Copy()
			v.Scale(vec.Creator().MakeNumeric(keepRate))
			momentVec.Add(v)
		}
	}

	if a.secondMoment == nil {
		a.secondMoment = copyGrad(grad)
		for _, v := range a.secondMoment {
			anyvec.Pow(v, v.Creator().MakeNumeric(2))
		}
		scaleGrad(a.secondMoment, 1-a.decayRate(2))
	} else {
		decayRate := a.decayRate(2)
		scaleGrad(a.secondMoment, decayRate)
		keepRate := 1 - decayRate
		for variable, vec := range grad {
			momentVec := a.secondMoment[variable]
			v := vec.Copy()
			anyvec.Pow(v, v.Creator().MakeNumeric(2))
			v.Scale(v.Creator().MakeNumeric(keepRate))
			momentVec.Add(v)
		}
	}
}

func (a *Adam) decayRate(moment int) float64 {
	if moment == 1 {
		return valueOrDefault(a.DecayRate1, adamDefaultDecayRate1)
	} else if moment == 2 {
		return valueOrDefault(a.DecayRate2, adamDefaultDecayRate2)
	} else {
		panic("invalid moment.")
	}
}

func (a *Adam) damping() float64 {
	return valueOrDefault(a.Damping, adamDefaultDamping)
}
