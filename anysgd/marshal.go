package anysgd

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

var errVarsGradMismatch = errors.New("variable list does not match gradients")

// marshalGradient encodes the vectors of grad in the order
// of vars.
// A nil gradient encodes to an empty slice.
func marshalGradient(vars []*anydiff.Var, grad anydiff.Grad) ([]byte, error) {
	if grad == nil {
		return []byte{}, nil
	}
	if len(vars) != len(grad) {
		return nil, errVarsGradMismatch
	}

	var vecObjs []interface{}
	for _, v := range vars {
		vec, ok := grad[v]
		if !ok {
			return nil, errVarsGradMismatch
		}
		vecObjs = append(vecObjs, &anyvecsave.S{Vector: vec})
	}

	return serializer.SerializeAny(vecObjs...)
}

// unmarshalGradient decodes a gradient for vars.
// Vectors saved with a different creator are converted to
// the creator of their variable.
func unmarshalGradient(vars []*anydiff.Var, data []byte) (anydiff.Grad, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var dests []interface{}
	for range vars {
		dests = append(dests, new(*anyvecsave.S))
	}
	if err := serializer.DeserializeAny(data, dests...); err != nil {
		return nil, err
	}

	res := anydiff.Grad{}
	for i, v := range vars {
		vec := (*dests[i].(**anyvecsave.S)).Vector
		if vec.Len() != v.Vector.Len() {
			return nil, fmt.Errorf("bad vector length for variable %d: expected %d but got %d",
				i, v.Vector.Len(), vec.Len())
		}
		if c := v.Vector.Creator(); vec.Creator() != c {
			vec = c.MakeVectorData(c.MakeNumericList(anycap.Float64s(vec)))
		}
		res[v] = vec
	}

	return res, nil
}
