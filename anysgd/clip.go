package anysgd

import (
	"math"

	"github.com/unixpickle/anydiff"
)

// GradNorm computes the Euclidean norm of the gradient,
// treating all of its vectors as one.
func GradNorm(g anydiff.Grad) float64 {
	var sum float64
	for _, vec := range g {
		switch dot := vec.Dot(vec).(type) {
		case float32:
			sum += float64(dot)
		case float64:
			sum += dot
		default:
			panic("unsupported numeric type")
		}
	}
	return math.Sqrt(sum)
}

// ClipGradNorm rescales g so that its norm is at most
// maxNorm.
// It returns the norm before clipping.
//
// A non-positive maxNorm disables clipping.
func ClipGradNorm(g anydiff.Grad, maxNorm float64) float64 {
	norm := GradNorm(g)
	if maxNorm <= 0 {
		return norm
	}
	coeff := maxNorm / (norm + 1e-6)
	if coeff < 1 {
		scaleGrad(g, coeff)
	}
	return norm
}
