package anytrain

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anyeval"
)

type wordVocab struct{}

func (wordVocab) StartID() int { return 1 }
func (wordVocab) EndID() int   { return 2 }
func (wordVocab) PadID() int   { return 0 }

func (wordVocab) Decode(ids []int) string {
	words := []string{"<pad>", "<start>", "<end>", "news", "photo", "city"}
	var res string
	for _, id := range ids {
		if id > 2 {
			if res != "" {
				res += " "
			}
			res += words[id]
		}
	}
	return res
}

func testValidator(truth anyeval.GroundTruth, dir string) *Validator {
	m := testModel()
	return &Validator{
		Model: m,
		Loss:  anycap.CrossEntropy{MaskPadding: true},
		Pipeline: &anyeval.Pipeline{
			Decoder: &anyeval.Greedy{Vocab: wordVocab{}},
			Scorer:  &anyeval.CIDEr{Truth: truth},
			Extra:   map[string]anyeval.Scorer{"bleu": &anyeval.BLEU{Truth: truth}},
		},
		Source: sliceSource(testBatches()),
		HypDir: dir,
	}
}

func TestValidate(t *testing.T) {
	truth := anyeval.GroundTruth{
		"a": {"news photo"},
		"b": {"city"},
		"c": {"photo photo news"},
	}
	dir := t.TempDir()
	v := testValidator(truth, dir)
	before := paramData(v.Model)

	res, err := v.Validate(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, paramData(v.Model)) {
		t.Error("validation changed the parameters")
	}
	if res.Loss <= 0 || res.Perplexity <= 1 {
		t.Errorf("unexpected loss %f and perplexity %f", res.Loss, res.Perplexity)
	}
	if res.Score < 0 {
		t.Errorf("negative score %f", res.Score)
	}
	if _, ok := res.Extra["bleu"]; !ok {
		t.Error("missing secondary metric")
	}

	hyps, err := anyeval.LoadHypotheses(filepath.Join(dir, "hyps_7.json"))
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, h := range hyps {
		ids = append(ids, h.ImageID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("unexpected hypotheses: %v", ids)
	}
}

func TestValidateMissingTruth(t *testing.T) {
	v := testValidator(anyeval.GroundTruth{"a": {"news"}}, "")
	if _, err := v.Validate(context.Background(), 0); err == nil {
		t.Error("expected error for missing ground truth")
	}
}

func TestValidateSourceError(t *testing.T) {
	v := testValidator(anyeval.GroundTruth{}, "")
	v.Source = func(context.Context) Batches {
		return &sliceBatches{Err: errors.New("broken")}
	}
	if _, err := v.Validate(context.Background(), 0); err == nil {
		t.Error("expected error")
	}
}

func TestValidateAfterFailedPass(t *testing.T) {
	truth := anyeval.GroundTruth{"a": {"news"}, "b": {"city"}, "c": {"photo"}}
	dir := t.TempDir()
	v := testValidator(truth, dir)
	batches := testBatches()

	v.Source = func(context.Context) Batches {
		return &sliceBatches{Batches: batches[:1], Err: errors.New("broken")}
	}
	if _, err := v.Validate(context.Background(), 0); err == nil {
		t.Fatal("expected error")
	}

	v.Source = sliceSource(batches)
	if _, err := v.Validate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	hyps, err := anyeval.LoadHypotheses(filepath.Join(dir, "hyps_1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(hyps) != 3 {
		t.Errorf("expected 3 hypotheses but got %d", len(hyps))
	}
}
