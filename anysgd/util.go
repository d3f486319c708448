package anysgd

import (
	"github.com/unixpickle/anydiff"
)

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, vec := range g {
		res[v] = vec.Copy()
	}
	return res
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, vec := range g {
		vec.Scale(vec.Creator().MakeNumeric(s))
	}
}

// subGrad creates a gradient for a subset of variables.
// The vectors are shared with g.
func subGrad(g anydiff.Grad, vars []*anydiff.Var) anydiff.Grad {
	res := anydiff.Grad{}
	for _, v := range vars {
		if vec, ok := g[v]; ok {
			res[v] = vec
		}
	}
	return res
}

func valueOrDefault(val, def float64) float64 {
	if val == 0 {
		return def
	}
	return val
}
