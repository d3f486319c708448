// Package anydata loads news captioning datasets and
// turns them into batches.
package anydata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
)

// An Example is one article, image and caption.
//
// Token ids include the start and end tokens.
// Embeddings are optional; if present, they store
// EmbedDim values per token.
type Example struct {
	ImageID string

	// Image is a row-major RGB tensor.
	Image []float64

	CaptionIDs []int
	CaptionEmb []float64

	ArticleIDs []int
	ArticleEmb []float64

	EmbedDim int
}

// A Dataset is an indexed collection of examples.
//
// Example may be called concurrently.
type Dataset interface {
	Len() int
	Example(i int) (*Example, error)
}

// An Annotation is one entry of an annotation file.
type Annotation struct {
	ImageID    string `json:"image_id"`
	Image      string `json:"image"`
	CaptionIDs []int  `json:"caption_ids"`
	ArticleIDs []int  `json:"article_ids"`

	CaptionEmb []float64 `json:"caption_emb,omitempty"`
	ArticleEmb []float64 `json:"article_emb,omitempty"`
	EmbedDim   int       `json:"embed_dim,omitempty"`
}

// A NewsDataset reads pre-tokenized annotations and loads
// the corresponding images on demand.
type NewsDataset struct {
	ImageDir    string
	Annotations []*Annotation

	// ImageSize is the side length that images are resized
	// to.
	ImageSize int

	// MaxArticleLen, if non-zero, truncates articles.
	MaxArticleLen int
}

// LoadNewsDataset reads an annotation file, which is a
// JSON array of Annotation objects.
func LoadNewsDataset(imageDir, annPath string, imageSize int) (*NewsDataset, error) {
	data, err := os.ReadFile(annPath)
	if err != nil {
		return nil, essentials.AddCtx("load dataset", err)
	}
	var anns []*Annotation
	if err := json.Unmarshal(data, &anns); err != nil {
		return nil, essentials.AddCtx("load dataset "+annPath, err)
	}
	for i, a := range anns {
		if err := a.check(); err != nil {
			return nil, fmt.Errorf("load dataset %s: annotation %d: %w", annPath, i, err)
		}
	}
	return &NewsDataset{ImageDir: imageDir, Annotations: anns, ImageSize: imageSize}, nil
}

// Len returns the number of annotations.
func (n *NewsDataset) Len() int {
	return len(n.Annotations)
}

// Example loads the image of the i-th annotation.
func (n *NewsDataset) Example(i int) (*Example, error) {
	a := n.Annotations[i]
	img, err := LoadImage(filepath.Join(n.ImageDir, a.Image), n.ImageSize)
	if err != nil {
		return nil, essentials.AddCtx("example "+a.ImageID, err)
	}
	res := &Example{
		ImageID:    a.ImageID,
		Image:      img,
		CaptionIDs: a.CaptionIDs,
		CaptionEmb: a.CaptionEmb,
		ArticleIDs: a.ArticleIDs,
		ArticleEmb: a.ArticleEmb,
		EmbedDim:   a.EmbedDim,
	}
	if n.MaxArticleLen > 0 && len(res.ArticleIDs) > n.MaxArticleLen {
		res.ArticleIDs = res.ArticleIDs[:n.MaxArticleLen]
		if res.ArticleEmb != nil {
			res.ArticleEmb = res.ArticleEmb[:n.MaxArticleLen*res.EmbedDim]
		}
	}
	return res, nil
}

func (a *Annotation) check() error {
	if a.ImageID == "" {
		return fmt.Errorf("missing image_id")
	}
	if len(a.CaptionIDs) < 2 {
		return fmt.Errorf("caption of %s must include start and end tokens", a.ImageID)
	}
	if a.CaptionEmb != nil && len(a.CaptionEmb) != len(a.CaptionIDs)*a.EmbedDim {
		return fmt.Errorf("caption embeddings of %s have the wrong size", a.ImageID)
	}
	if a.ArticleEmb != nil && len(a.ArticleEmb) != len(a.ArticleIDs)*a.EmbedDim {
		return fmt.Errorf("article embeddings of %s have the wrong size", a.ImageID)
	}
	return nil
}
