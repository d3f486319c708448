package anysgd

import (
	"log/slog"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anydiff"
)

// DefaultEncoderLR is the learning rate of an encoder
// optimizer that has to be rebuilt because no saved state
// was available.
const DefaultEncoderLR = 0.0005

// A Coordinator owns the two optimizers of a caption
// model.
//
// The primary optimizer updates every model parameter
// outside the image encoder.
// The encoder optimizer updates the trainable parameters
// of the image encoder.
// The two parameter groups are disjoint, and each group is
// stepped independently with its own learning rate.
type Coordinator struct {
	Primary *Optimizer

	// Encoder may be nil, for example after restoring from
	// a checkpoint which did not include it.
	// See EnsureEncoder.
	Encoder *Optimizer

	Logger *slog.Logger
}

// NewCoordinator creates fresh Adam optimizers for the
// model.
func NewCoordinator(m anycap.Model, primaryLR, encoderLR float64) *Coordinator {
	return &Coordinator{
		Primary: NewPrimary(m, primaryLR),
		Encoder: NewEncoder(m.Encoder(), encoderLR),
	}
}

// NewPrimary creates an Adam optimizer for the parameters
// of m which do not belong to its image encoder.
func NewPrimary(m anycap.Model, lr float64) *Optimizer {
	inEncoder := map[*anydiff.Var]bool{}
	if enc := m.Encoder(); enc != nil {
		for _, p := range enc.Parameters() {
			inEncoder[p] = true
		}
	}
	return NewAdamFiltered(m.Parameters(), func(p *anydiff.Var) bool {
		return !inEncoder[p]
	}, lr)
}

// NewEncoder creates an Adam optimizer for the trainable
// parameters of the image encoder.
func NewEncoder(enc anycap.ImageEncoder, lr float64) *Optimizer {
	if enc == nil {
		return NewAdam(nil, lr)
	}
	return NewAdamFiltered(enc.Parameters(), func(p *anydiff.Var) bool {
		return !enc.Frozen(p)
	}, lr)
}

// EnsureEncoder rebuilds the encoder optimizer if it is
// missing.
// It reports whether the optimizer had to be rebuilt.
//
// A rebuilt optimizer starts from scratch with learning
// rate lr, or DefaultEncoderLR if lr is 0.
func (c *Coordinator) EnsureEncoder(enc anycap.ImageEncoder, lr float64) bool {
	if c.Encoder != nil {
		return false
	}
	if lr == 0 {
		lr = DefaultEncoderLR
	}
	c.Encoder = NewEncoder(enc, lr)
	c.logger().Warn("encoder optimizer missing, rebuilt with defaults",
		"learning_rate", lr, "params", len(c.Encoder.Params))
	return true
}

// ZeroGrad creates a zero gradient covering the parameters
// of both optimizers.
//
// Parameters of a missing encoder optimizer are left out,
// so the backward pass treats them as constants.
func (c *Coordinator) ZeroGrad() anydiff.Grad {
	g := anydiff.Grad{}
	c.Primary.ZeroGrad(g)
	if c.Encoder != nil {
		c.Encoder.ZeroGrad(g)
	}
	return g
}

// Step steps both optimizers using their parts of g.
func (c *Coordinator) Step(g anydiff.Grad) {
	c.Primary.Step(g)
	if c.Encoder != nil {
		c.Encoder.Step(g)
	}
}

// DecayPrimary multiplies the learning rate of the primary
// optimizer by factor and returns the new rate.
// The encoder optimizer is not affected.
func (c *Coordinator) DecayPrimary(factor float64) float64 {
	c.Primary.LearningRate *= factor
	return c.Primary.LearningRate
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
