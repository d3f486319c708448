package anyckpt

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anysgd"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

type testEncoder struct {
	Backbone   *anydiff.Var
	Projection *anydiff.Var
}

func (t *testEncoder) Parameters() []*anydiff.Var {
	return []*anydiff.Var{t.Backbone, t.Projection}
}

func (t *testEncoder) Frozen(p *anydiff.Var) bool {
	return p == t.Backbone
}

type testModel struct {
	Body []*anydiff.Var
	Enc  *testEncoder
}

func newTestModel(c anyvec.Creator, values ...float64) *testModel {
	v := func(x ...float64) *anydiff.Var {
		return anydiff.NewVar(c.MakeVectorData(c.MakeNumericList(x)))
	}
	return &testModel{
		Body: []*anydiff.Var{v(values[0], values[1]), v(values[2])},
		Enc:  &testEncoder{Backbone: v(values[3]), Projection: v(values[4], values[5])},
	}
}

func (t *testModel) Parameters() []*anydiff.Var {
	return append(append([]*anydiff.Var{}, t.Body...), t.Enc.Parameters()...)
}

func (t *testModel) Encoder() anycap.ImageEncoder                 { return t.Enc }
func (t *testModel) SetTraining(bool)                             {}
func (t *testModel) VocabSize() int                               { return 1 }
func (t *testModel) Forward(*anycap.Batch) anydiff.Res            { panic("not implemented") }
func (t *testModel) StartDecode(*anycap.Batch) anycap.DecodeState { panic("not implemented") }

func modelValues(m anycap.Model) [][]float64 {
	var res [][]float64
	for _, p := range m.Parameters() {
		res = append(res, anycap.Float64s(p.Vector))
	}
	return res
}

func stepOnce(c *anysgd.Coordinator) {
	g := c.ZeroGrad()
	for _, vec := range g {
		vec.AddScalar(vec.Creator().MakeNumeric(1))
	}
	c.Step(g)
}

func TestCheckpointRoundTrip(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	model := newTestModel(c, 1, 2, 3, 4, 5, 6)
	coord := anysgd.NewCoordinator(model, 0.01, 0.002)
	stepOnce(coord)

	ckpt := &Checkpoint{
		Epoch:                  7,
		EpochsSinceImprovement: 3,
		Score:                  0.25,
		BestScore:              0.5,
		DataName:               "goodnews",
	}
	if err := Capture(ckpt, model, coord); err != nil {
		t.Fatal(err)
	}

	mgr := &Manager{Dir: t.TempDir(), DataName: "goodnews"}
	if err := mgr.Save(ckpt, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(mgr.BestPath()); !os.IsNotExist(err) {
		t.Error("best checkpoint should not exist")
	}

	restored, err := Restore(mgr.Path())
	if err != nil {
		t.Fatal(err)
	}
	if restored.NextEpoch() != 8 {
		t.Errorf("expected next epoch 8 but got %d", restored.NextEpoch())
	}
	if restored.EpochsSinceImprovement != 3 || restored.Score != 0.25 ||
		restored.BestScore != 0.5 || restored.DataName != "goodnews" {
		t.Errorf("bad scalars: %+v", restored)
	}

	other := newTestModel(c, 0, 0, 0, 0, 0, 0)
	if err := restored.ApplyParameters(other); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(modelValues(other), modelValues(model)) {
		t.Errorf("expected %v but got %v", modelValues(model), modelValues(other))
	}

	otherCoord, err := restored.Coordinator(other, 1)
	if err != nil {
		t.Fatal(err)
	}
	if otherCoord.Primary.LearningRate != 0.01 {
		t.Errorf("bad primary learning rate: %f", otherCoord.Primary.LearningRate)
	}
	if otherCoord.Encoder == nil || otherCoord.Encoder.LearningRate != 0.002 {
		t.Fatal("encoder optimizer not restored")
	}

	stepOnce(coord)
	stepOnce(otherCoord)
	expected := modelValues(model)
	actual := modelValues(other)
	for i := range expected {
		for j := range expected[i] {
			if math.Abs(expected[i][j]-actual[i][j]) > 1e-12 {
				t.Errorf("param %d,%d: expected %f but got %f", i, j, expected[i][j], actual[i][j])
			}
		}
	}
}

func TestCheckpointChangeCreator(t *testing.T) {
	model := newTestModel(anyvec64.DefaultCreator{}, 1, 2, 3, 4, 5, 6)
	coord := anysgd.NewCoordinator(model, 0.01, 0.002)
	stepOnce(coord)

	ckpt := &Checkpoint{Epoch: 2, Score: 0.1}
	if err := Capture(ckpt, model, coord); err != nil {
		t.Fatal(err)
	}
	mgr := &Manager{Dir: t.TempDir(), DataName: "goodnews"}
	if err := mgr.Save(ckpt, false); err != nil {
		t.Fatal(err)
	}
	restored, err := Restore(mgr.Path())
	if err != nil {
		t.Fatal(err)
	}

	other := newTestModel(anyvec32.DefaultCreator{}, 0, 0, 0, 0, 0, 0)
	if err := restored.ApplyParameters(other); err != nil {
		t.Fatal(err)
	}
	otherCoord, err := restored.Coordinator(other, 1)
	if err != nil {
		t.Fatal(err)
	}
	if otherCoord.Encoder == nil {
		t.Fatal("encoder optimizer not restored")
	}

	stepOnce(coord)
	stepOnce(otherCoord)
	expected := modelValues(model)
	actual := modelValues(other)
	for i := range expected {
		for j := range expected[i] {
			if math.Abs(expected[i][j]-actual[i][j]) > 1e-4 {
				t.Errorf("param %d,%d: expected %f but got %f", i, j, expected[i][j], actual[i][j])
			}
		}
	}
}

func TestCheckpointBestFile(t *testing.T) {
	model := newTestModel(anyvec32.DefaultCreator{}, 1, 2, 3, 4, 5, 6)
	ckpt := &Checkpoint{Epoch: 2, Score: 0.1}
	if err := Capture(ckpt, model, anysgd.NewCoordinator(model, 0.1, 0.1)); err != nil {
		t.Fatal(err)
	}
	mgr := &Manager{Dir: filepath.Join(t.TempDir(), "nested"), DataName: "x"}
	if err := mgr.Save(ckpt, true); err != nil {
		t.Fatal(err)
	}
	best, err := Restore(mgr.BestPath())
	if err != nil {
		t.Fatal(err)
	}
	if best.Epoch != 2 || best.Score != 0.1 {
		t.Errorf("unexpected best checkpoint: %+v", best)
	}
	entries, err := os.ReadDir(mgr.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 files but got %d", len(entries))
	}
}

func TestCheckpointNullEncoder(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	model := newTestModel(c, 1, 2, 3, 4, 5, 6)
	coord := anysgd.NewCoordinator(model, 0.1, 0.1)
	coord.Encoder = nil

	ckpt := &Checkpoint{Epoch: 5}
	if err := Capture(ckpt, model, coord); err != nil {
		t.Fatal(err)
	}
	data, err := ckpt.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := DeserializeCheckpoint(data)
	if err != nil {
		t.Fatal(err)
	}
	if restored.EncoderOptimizer != nil {
		t.Error("expected null encoder optimizer")
	}
	newCoord, err := restored.Coordinator(model, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if newCoord.Encoder != nil {
		t.Fatal("expected nil encoder optimizer")
	}
	if !newCoord.EnsureEncoder(model.Encoder(), 0) {
		t.Error("encoder optimizer should be rebuilt")
	}
	if newCoord.Encoder.LearningRate != anysgd.DefaultEncoderLR {
		t.Errorf("unexpected learning rate %f", newCoord.Encoder.LearningRate)
	}
	if len(newCoord.Encoder.Params) != 1 || newCoord.Encoder.Params[0] != model.Enc.Projection {
		t.Error("rebuilt encoder optimizer should only hold trainable parameters")
	}
}

func TestCheckpointMissingField(t *testing.T) {
	record := []serializer.Serializer{
		serializer.String(FieldEpoch), serializer.Bytes(mustSerialize(t, serializer.Int(3))),
		serializer.String(FieldScore), serializer.Bytes(mustSerialize(t, serializer.Float64(1))),
	}
	data, err := serializer.SerializeSlice(record)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DeserializeCheckpoint(data); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestCheckpointMismatch(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	model := newTestModel(c, 1, 2, 3, 4, 5, 6)
	ckpt := &Checkpoint{Decoder: []anyvec.Vector{c.MakeVector(2)}}
	if err := ckpt.ApplyParameters(model); err == nil {
		t.Error("expected error for missing parameters")
	}
}

func TestRestoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ckpt")
	if err := os.WriteFile(path, []byte("not a checkpoint"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Restore(path); err == nil {
		t.Error("expected error")
	}
	if _, err := Restore(filepath.Join(t.TempDir(), "missing.ckpt")); err == nil {
		t.Error("expected error")
	}
}

func mustSerialize(t *testing.T, obj interface{}) []byte {
	data, err := serializer.SerializeAny(obj)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
