package anydata

import (
	"fmt"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anyvec"
)

// Collate packs examples into a batch.
//
// Caption and article ids are padded with padID to the
// longest row in the batch.
// Embeddings are only included if every example has them.
func Collate(c anyvec.Creator, examples []*Example, padID int) (*anycap.Batch, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("collate: no examples")
	}
	imageSize := len(examples[0].Image)
	embedDim := examples[0].EmbedDim
	for _, e := range examples {
		if len(e.Image) != imageSize {
			return nil, fmt.Errorf("collate: image of %s has size %d, expected %d",
				e.ImageID, len(e.Image), imageSize)
		}
		if e.EmbedDim != embedDim || e.CaptionEmb == nil || e.ArticleEmb == nil {
			embedDim = 0
		}
	}

	var images []float64
	res := &anycap.Batch{EmbedDim: embedDim}
	capRows := make([][]int, len(examples))
	artRows := make([][]int, len(examples))
	var capEmb, artEmb [][]float64
	for i, e := range examples {
		images = append(images, e.Image...)
		res.ImageIDs = append(res.ImageIDs, e.ImageID)
		res.CaptionLens = append(res.CaptionLens, len(e.CaptionIDs))
		res.ArticleLens = append(res.ArticleLens, len(e.ArticleIDs))
		capRows[i] = e.CaptionIDs
		artRows[i] = e.ArticleIDs
		if embedDim != 0 {
			capEmb = append(capEmb, e.CaptionEmb)
			artEmb = append(artEmb, e.ArticleEmb)
		}
	}

	var capMask, artMask []float64
	res.CaptionIDs, capMask = padRows(capRows, padID)
	res.ArticleIDs, artMask = padRows(artRows, padID)
	res.Images = c.MakeVectorData(c.MakeNumericList(images))
	res.CaptionMask = c.MakeVectorData(c.MakeNumericList(capMask))
	res.ArticleMask = c.MakeVectorData(c.MakeNumericList(artMask))
	if embedDim != 0 {
		res.CaptionEmb = c.MakeVectorData(c.MakeNumericList(
			padEmbeddings(capEmb, res.CaptionLen(), embedDim)))
		res.ArticleEmb = c.MakeVectorData(c.MakeNumericList(
			padEmbeddings(artEmb, res.ArticleLen(), embedDim)))
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func padRows(rows [][]int, padID int) ([][]int, []float64) {
	var maxLen int
	for _, r := range rows {
		if len(r) > maxLen {
			maxLen = len(r)
		}
	}
	res := make([][]int, len(rows))
	mask := make([]float64, 0, maxLen*len(rows))
	for i, r := range rows {
		res[i] = make([]int, maxLen)
		for j := range res[i] {
			if j < len(r) {
				res[i][j] = r[j]
				mask = append(mask, 1)
			} else {
				res[i][j] = padID
				mask = append(mask, 0)
			}
		}
	}
	return res, mask
}

func padEmbeddings(rows [][]float64, length, dim int) []float64 {
	res := make([]float64, len(rows)*length*dim)
	for i, r := range rows {
		copy(res[i*length*dim:], r)
	}
	return res
}
