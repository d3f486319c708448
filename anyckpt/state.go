package anyckpt

import (
	"fmt"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Capture copies the parameters of m and the optimizer
// states of c into ckpt.
// A nil optimizer is stored as null.
func Capture(ckpt *Checkpoint, m anycap.Model, c *anysgd.Coordinator) error {
	ckpt.Decoder = nil
	for _, p := range m.Parameters() {
		ckpt.Decoder = append(ckpt.Decoder, p.Vector.Copy())
	}
	var err error
	ckpt.DecoderOptimizer, err = marshalOptimizer(c.Primary)
	if err != nil {
		return essentials.AddCtx("capture decoder optimizer", err)
	}
	ckpt.EncoderOptimizer, err = marshalOptimizer(c.Encoder)
	if err != nil {
		return essentials.AddCtx("capture encoder optimizer", err)
	}
	return nil
}

// ApplyParameters copies the saved parameters into m.
// The saved vectors are converted to the creator of each
// parameter.
func (c *Checkpoint) ApplyParameters(m anycap.Model) error {
	params := m.Parameters()
	if len(params) != len(c.Decoder) {
		return fmt.Errorf("apply checkpoint: expected %d parameters but got %d",
			len(params), len(c.Decoder))
	}
	for i, p := range params {
		saved := c.Decoder[i]
		if saved.Len() != p.Vector.Len() {
			return fmt.Errorf("apply checkpoint: parameter %d should have length %d but has %d",
				i, p.Vector.Len(), saved.Len())
		}
		p.Vector.Set(convert(p.Vector.Creator(), saved))
	}
	return nil
}

// Coordinator rebuilds the optimizers of m from their
// saved states.
//
// If no encoder optimizer state was saved, the resulting
// Coordinator has a nil Encoder.
// If no decoder optimizer state was saved, a fresh primary
// optimizer with learning rate primaryLR is used.
func (c *Checkpoint) Coordinator(m anycap.Model, primaryLR float64) (*anysgd.Coordinator, error) {
	res := &anysgd.Coordinator{Primary: anysgd.NewPrimary(m, primaryLR)}
	if c.DecoderOptimizer != nil {
		if err := res.Primary.UnmarshalBinary(c.DecoderOptimizer); err != nil {
			return nil, essentials.AddCtx("restore decoder optimizer", err)
		}
	}
	if c.EncoderOptimizer != nil {
		res.Encoder = anysgd.NewEncoder(m.Encoder(), 0)
		if err := res.Encoder.UnmarshalBinary(c.EncoderOptimizer); err != nil {
			return nil, essentials.AddCtx("restore encoder optimizer", err)
		}
	}
	return res, nil
}

func marshalOptimizer(o *anysgd.Optimizer) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	return o.MarshalBinary()
}

func convert(c anyvec.Creator, v anyvec.Vector) anyvec.Vector {
	if v.Creator() == c {
		return v
	}
	return c.MakeVectorData(c.MakeNumericList(anycap.Float64s(v)))
}
