package anycap

import (
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func testBatch(c anyvec.Creator) *Batch {
	return &Batch{
		Images:      c.MakeVector(2 * 6),
		CaptionIDs:  [][]int{{1, 5, 6, 2}, {1, 7, 2, 0}},
		CaptionMask: c.MakeVectorData(c.MakeNumericList([]float64{1, 1, 1, 1, 1, 1, 1, 0})),
		CaptionEmb:  c.MakeVector(2 * 4 * 3),
		CaptionLens: []int{4, 3},
		ImageIDs:    []string{"img0", "img1"},
		ArticleIDs:  [][]int{{9, 8, 0}, {7, 6, 5}},
		ArticleMask: c.MakeVectorData(c.MakeNumericList([]float64{1, 1, 0, 1, 1, 1})),
		ArticleEmb:  c.MakeVector(2 * 3 * 3),
		ArticleLens: []int{2, 3},
		EmbedDim:    3,
	}
}

func TestBatchValidate(t *testing.T) {
	b := testBatch(anyvec32.DefaultCreator{})
	if err := b.Validate(); err != nil {
		t.Fatal(err)
	}
	if b.Size() != 2 || b.CaptionLen() != 4 || b.ArticleLen() != 3 || b.ImageSize() != 6 {
		t.Errorf("bad dimensions: %d %d %d %d", b.Size(), b.CaptionLen(), b.ArticleLen(),
			b.ImageSize())
	}

	bad := testBatch(anyvec32.DefaultCreator{})
	bad.CaptionLens = bad.CaptionLens[:1]
	if bad.Validate() == nil {
		t.Error("expected error for short caption lengths")
	}

	bad = testBatch(anyvec32.DefaultCreator{})
	bad.ArticleIDs[1] = bad.ArticleIDs[1][:2]
	if bad.Validate() == nil {
		t.Error("expected error for ragged article ids")
	}

	bad = testBatch(anyvec32.DefaultCreator{})
	bad.CaptionEmb = bad.CaptionEmb.Slice(0, 3)
	if bad.Validate() == nil {
		t.Error("expected error for short caption embeddings")
	}
}

func TestBatchSizeOne(t *testing.T) {
	c := anyvec32.DefaultCreator{}
	b := &Batch{
		Images:      c.MakeVector(6),
		CaptionIDs:  [][]int{{1, 4, 2}},
		CaptionMask: c.MakeVectorData([]float32{1, 1, 1}),
		CaptionLens: []int{3},
		ImageIDs:    []string{"only"},
		ArticleIDs:  [][]int{{3}},
		ArticleMask: c.MakeVectorData([]float32{1}),
		ArticleLens: []int{1},
	}
	if err := b.Validate(); err != nil {
		t.Fatal(err)
	}
	if b.DecodeTotal() != 1 {
		t.Errorf("expected decode total 1 but got %d", b.DecodeTotal())
	}
}

func TestBatchDecodeLengths(t *testing.T) {
	b := testBatch(anyvec32.DefaultCreator{})
	if !reflect.DeepEqual(b.DecodeLengths(), []int{2, 1}) {
		t.Errorf("unexpected decode lengths: %v", b.DecodeLengths())
	}
	if b.DecodeTotal() != 3 {
		t.Errorf("unexpected decode total: %d", b.DecodeTotal())
	}
}

func TestDeviceTransfer(t *testing.T) {
	b := testBatch(anyvec32.DefaultCreator{})
	anyvec.Rand(b.Images, anyvec.Normal, nil)

	same := NewDevice("cpu", nil)
	if same.Transfer(b) != b {
		t.Error("transfer to the same device should be a no-op")
	}

	d := NewDevice("cpu64", nil)
	moved := d.Transfer(b)
	if moved.Images.Creator() != (anyvec64.DefaultCreator{}) {
		t.Fatal("images were not moved")
	}
	if moved.ArticleMask.Creator() != (anyvec64.DefaultCreator{}) {
		t.Fatal("article mask was not moved")
	}
	expected := Float64s(b.Images)
	actual := moved.Images.Data().([]float64)
	for i, x := range expected {
		if float32(x) != float32(actual[i]) {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}
	if err := moved.Validate(); err != nil {
		t.Error(err)
	}
}

func TestDeviceFallback(t *testing.T) {
	d := NewDevice("cuda", nil)
	if d.Name != "cpu32" || d.Creator != (anyvec32.DefaultCreator{}) {
		t.Errorf("expected cpu32 fallback, got %s", d.Name)
	}
}
