package anysgd

import (
	"math"
	"testing"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

type testEncoder struct {
	Trainable *anydiff.Var
	Backbone  *anydiff.Var
}

func (t *testEncoder) Parameters() []*anydiff.Var {
	return []*anydiff.Var{t.Backbone, t.Trainable}
}

func (t *testEncoder) Frozen(p *anydiff.Var) bool {
	return p == t.Backbone
}

type testModel struct {
	Body *anydiff.Var
	Enc  *testEncoder
}

func newTestModel() *testModel {
	c := anyvec64.DefaultCreator{}
	return &testModel{
		Body: anydiff.NewVar(c.MakeVectorData([]float64{1, 2})),
		Enc: &testEncoder{
			Trainable: anydiff.NewVar(c.MakeVectorData([]float64{3})),
			Backbone:  anydiff.NewVar(c.MakeVectorData([]float64{4})),
		},
	}
}

func (t *testModel) Parameters() []*anydiff.Var {
	return append([]*anydiff.Var{t.Body}, t.Enc.Parameters()...)
}

func (t *testModel) Encoder() anycap.ImageEncoder {
	return t.Enc
}

func (t *testModel) SetTraining(training bool) {}

func (t *testModel) VocabSize() int {
	return 1
}

func (t *testModel) Forward(b *anycap.Batch) anydiff.Res {
	panic("not implemented")
}

func (t *testModel) StartDecode(b *anycap.Batch) anycap.DecodeState {
	panic("not implemented")
}

func TestOptimizerConverges(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	x := anydiff.NewVar(c.MakeVector(2))
	target := anydiff.NewConst(c.MakeVectorData([]float64{3, -1}))
	opt := NewAdam([]*anydiff.Var{x}, 0.05)
	for i := 0; i < 2000; i++ {
		diff := anydiff.Sub(x, target)
		cost := anydiff.Sum(anydiff.Square(diff))
		g := anydiff.Grad{}
		opt.ZeroGrad(g)
		cost.Propagate(c.MakeVectorData([]float64{1}), g)
		opt.Step(g)
	}
	data := x.Vector.Data().([]float64)
	if math.Abs(data[0]-3) > 1e-2 || math.Abs(data[1]+1) > 1e-2 {
		t.Errorf("bad solution: %v", data)
	}
}

func TestCoordinatorGroups(t *testing.T) {
	m := newTestModel()
	coord := NewCoordinator(m, 0.1, 0.2)
	if len(coord.Primary.Params) != 1 || coord.Primary.Params[0] != m.Body {
		t.Errorf("primary should only own the body parameter")
	}
	if len(coord.Encoder.Params) != 1 || coord.Encoder.Params[0] != m.Enc.Trainable {
		t.Errorf("encoder optimizer should only own the trainable encoder parameter")
	}

	g := coord.ZeroGrad()
	if len(g) != 2 {
		t.Fatalf("expected 2 gradient entries but got %d", len(g))
	}
	if _, ok := g[m.Enc.Backbone]; ok {
		t.Error("frozen parameter should not receive a gradient")
	}
	for _, vec := range g {
		vec.AddScalar(vec.Creator().MakeNumeric(1))
	}
	coord.Step(g)
	if m.Enc.Backbone.Vector.Data().([]float64)[0] != 4 {
		t.Error("frozen parameter was updated")
	}
	body := m.Body.Vector.Data().([]float64)
	if math.Abs(body[0]-0.9) > 1e-6 || math.Abs(body[1]-1.9) > 1e-6 {
		t.Errorf("unexpected body after first Adam step: %v", body)
	}
	enc := m.Enc.Trainable.Vector.Data().([]float64)[0]
	if math.Abs(enc-2.8) > 1e-6 {
		t.Errorf("unexpected encoder param after first Adam step: %f", enc)
	}
}

func TestCoordinatorMissingEncoder(t *testing.T) {
	m := newTestModel()
	coord := &Coordinator{Primary: NewPrimary(m, 0.1)}

	g := coord.ZeroGrad()
	if len(g) != 1 {
		t.Errorf("expected only primary gradients, got %d entries", len(g))
	}
	coord.Step(g)

	if !coord.EnsureEncoder(m.Encoder(), 0) {
		t.Fatal("expected the encoder optimizer to be rebuilt")
	}
	if coord.Encoder.LearningRate != DefaultEncoderLR {
		t.Errorf("unexpected learning rate: %f", coord.Encoder.LearningRate)
	}
	if len(coord.Encoder.Params) != 1 || coord.Encoder.Params[0] != m.Enc.Trainable {
		t.Error("rebuilt optimizer should only own trainable encoder parameters")
	}
	if coord.EnsureEncoder(m.Encoder(), 0) {
		t.Error("existing encoder optimizer should be kept")
	}
}

func TestCoordinatorDecay(t *testing.T) {
	coord := NewCoordinator(newTestModel(), 0.5, 0.2)
	for i := 0; i < 3; i++ {
		coord.DecayPrimary(0.6)
	}
	expected := 0.5 * math.Pow(0.6, 3)
	if math.Abs(coord.Primary.LearningRate-expected) > 1e-12 {
		t.Errorf("expected %f but got %f", expected, coord.Primary.LearningRate)
	}
	if coord.Encoder.LearningRate != 0.2 {
		t.Error("encoder learning rate should not decay")
	}
}

func TestClipGradNorm(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v1 := anydiff.NewVar(c.MakeVector(2))
	v2 := anydiff.NewVar(c.MakeVector(1))
	g := anydiff.Grad{
		v1: c.MakeVectorData([]float64{3, 0}),
		v2: c.MakeVectorData([]float64{4}),
	}
	norm := ClipGradNorm(g, 1)
	if math.Abs(norm-5) > 1e-12 {
		t.Errorf("expected norm 5 but got %f", norm)
	}
	if newNorm := GradNorm(g); math.Abs(newNorm-1) > 1e-5 {
		t.Errorf("expected clipped norm 1 but got %f", newNorm)
	}

	small := anydiff.Grad{v2: c.MakeVectorData([]float64{0.5})}
	ClipGradNorm(small, 1)
	if small[v2].Data().([]float64)[0] != 0.5 {
		t.Error("gradient below the threshold should be unchanged")
	}
}

var _ anycap.Model = &testModel{}
