package anycap

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anyvec"
)

// A Batch is a collated mini-batch of examples.
//
// Token id rows are padded to a common length.
// Masks are packed row-major with one value per token
// position (1 for a real token, 0 for padding), and
// embeddings are packed with EmbedDim values per token
// position.
type Batch struct {
	// Images stores one flattened image tensor per example.
	Images anyvec.Vector

	CaptionIDs  [][]int
	CaptionMask anyvec.Vector
	CaptionEmb  anyvec.Vector
	CaptionLens []int

	ImageIDs []string

	ArticleIDs  [][]int
	ArticleMask anyvec.Vector
	ArticleEmb  anyvec.Vector
	ArticleLens []int

	// EmbedDim is the size of each token embedding.
	// If it is 0, the embedding vectors may be nil.
	EmbedDim int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.ImageIDs)
}

// CaptionLen returns the padded caption length.
func (b *Batch) CaptionLen() int {
	if len(b.CaptionIDs) == 0 {
		return 0
	}
	return len(b.CaptionIDs[0])
}

// ArticleLen returns the padded article length.
func (b *Batch) ArticleLen() int {
	if len(b.ArticleIDs) == 0 {
		return 0
	}
	return len(b.ArticleIDs[0])
}

// ImageSize returns the number of components in each
// example's image tensor.
func (b *Batch) ImageSize() int {
	if b.Size() == 0 {
		return 0
	}
	return b.Images.Len() / b.Size()
}

// Creator returns the creator of the batch's tensors.
func (b *Batch) Creator() anyvec.Creator {
	return b.Images.Creator()
}

// DecodeLengths returns, for every example, the number of
// caption tokens excluding the start and end tokens.
func (b *Batch) DecodeLengths() []int {
	res := make([]int, len(b.CaptionLens))
	for i, l := range b.CaptionLens {
		res[i] = l - 2
	}
	return res
}

// DecodeTotal sums DecodeLengths.
func (b *Batch) DecodeTotal() int {
	var sum int
	for _, l := range b.DecodeLengths() {
		sum += l
	}
	return sum
}

// Validate checks that every per-example field shares the
// same leading batch dimension and that the packed
// tensors have consistent sizes.
func (b *Batch) Validate() error {
	n := b.Size()
	if n == 0 {
		return errors.New("validate batch: empty batch")
	}
	if b.Images == nil || b.Images.Len() == 0 || b.Images.Len()%n != 0 {
		return fmt.Errorf("validate batch: image tensor size %d not divisible by batch size %d",
			vecLen(b.Images), n)
	}
	checks := []struct {
		name string
		got  int
	}{
		{"caption ids", len(b.CaptionIDs)},
		{"caption lengths", len(b.CaptionLens)},
		{"article ids", len(b.ArticleIDs)},
		{"article lengths", len(b.ArticleLens)},
	}
	for _, c := range checks {
		if c.got != n {
			return fmt.Errorf("validate batch: %s has %d rows, expected %d", c.name, c.got, n)
		}
	}
	if err := checkRows("caption", b.CaptionIDs, b.CaptionLens); err != nil {
		return err
	}
	if err := checkRows("article", b.ArticleIDs, b.ArticleLens); err != nil {
		return err
	}
	capPos := n * b.CaptionLen()
	artPos := n * b.ArticleLen()
	tensors := []struct {
		name     string
		vec      anyvec.Vector
		expected int
	}{
		{"caption mask", b.CaptionMask, capPos},
		{"caption embeddings", b.CaptionEmb, capPos * b.EmbedDim},
		{"article mask", b.ArticleMask, artPos},
		{"article embeddings", b.ArticleEmb, artPos * b.EmbedDim},
	}
	for _, t := range tensors {
		if vecLen(t.vec) != t.expected {
			return fmt.Errorf("validate batch: %s has %d values, expected %d", t.name,
				vecLen(t.vec), t.expected)
		}
	}
	return nil
}

func checkRows(name string, rows [][]int, lens []int) error {
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return fmt.Errorf("validate batch: ragged %s ids at row %d", name, i)
		}
		if lens[i] < 0 || lens[i] > len(row) {
			return fmt.Errorf("validate batch: %s length %d out of range at row %d", name,
				lens[i], i)
		}
	}
	return nil
}

func vecLen(v anyvec.Vector) int {
	if v == nil {
		return 0
	}
	return v.Len()
}
