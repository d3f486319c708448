package anytrain

import (
	"context"
	"io"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anyref"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

const testVocabSize = 6

func testModel() *anyref.Model {
	return anyref.New(anyvec64.DefaultCreator{}, testModelConfig())
}

func testModelConfig() anyref.Config {
	return anyref.Config{
		VocabSize:  testVocabSize,
		EmbedDim:   3,
		HiddenDim:  4,
		ImageSize:  4,
		FeatureDim: 3,
		StartID:    1,
		Seed:       7,
	}
}

func testBatches() []*anycap.Batch {
	c := anyvec64.DefaultCreator{}
	vec := func(x ...float64) anyvec.Vector {
		return c.MakeVectorData(c.MakeNumericList(x))
	}
	return []*anycap.Batch{
		{
			Images:      vec(0.5, -0.5, 1, 0, 0.1, 0.2, 0.3, 0.4),
			CaptionIDs:  [][]int{{1, 3, 4, 2}, {1, 5, 2, 0}},
			CaptionMask: vec(1, 1, 1, 1, 1, 1, 1, 0),
			CaptionLens: []int{4, 3},
			ImageIDs:    []string{"a", "b"},
			ArticleIDs:  [][]int{{3, 4}, {5, 0}},
			ArticleMask: vec(1, 1, 1, 0),
			ArticleLens: []int{2, 1},
		},
		{
			Images:      vec(-1, 1, 0.5, 0.5),
			CaptionIDs:  [][]int{{1, 4, 4, 3, 2}},
			CaptionMask: vec(1, 1, 1, 1, 1),
			CaptionLens: []int{5},
			ImageIDs:    []string{"c"},
			ArticleIDs:  [][]int{{4, 4, 3}},
			ArticleMask: vec(1, 1, 1),
			ArticleLens: []int{3},
		},
	}
}

type sliceBatches struct {
	Batches []*anycap.Batch
	Err     error
	next    int
	Closed  bool
}

func (s *sliceBatches) Next() (*anycap.Batch, error) {
	if s.next < len(s.Batches) {
		s.next++
		return s.Batches[s.next-1], nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}

func (s *sliceBatches) Close() error {
	s.Closed = true
	return nil
}

func sliceSource(batches []*anycap.Batch) Source {
	return func(ctx context.Context) Batches {
		return &sliceBatches{Batches: batches}
	}
}

func paramData(m anycap.Model) [][]float64 {
	var res [][]float64
	for _, p := range m.Parameters() {
		res = append(res, append([]float64{}, anycap.Float64s(p.Vector)...))
	}
	return res
}
