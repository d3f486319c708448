// Package anyref implements a small reference caption
// model.
//
// An article is embedded and mean-pooled, an image is
// encoded by a frozen backbone and a trainable
// projection, and the two are merged into a context
// vector which conditions a recurrent decoder.
package anyref

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Config describes the shape of a Model.
type Config struct {
	VocabSize int
	EmbedDim  int
	HiddenDim int

	// ImageSize is the number of components in a flattened
	// image tensor.
	ImageSize  int
	FeatureDim int

	// Dropout is the probability of dropping a decoder
	// activation while training.
	Dropout float64

	// StartID is fed to the decoder before the first
	// caption token.
	StartID int

	Seed int64
}

// ImageEncoder turns images into context features.
type ImageEncoder struct {
	// Backbone stands in for a pretrained feature extractor
	// and is never trained.
	Backbone   *Linear
	Projection *Linear
}

// Apply encodes a batch of flattened images.
func (i *ImageEncoder) Apply(images anydiff.Res, n int) anydiff.Res {
	features := anydiff.Tanh(i.Backbone.Apply(images, n))
	return i.Projection.Apply(features, n)
}

// Parameters returns the backbone and projection
// parameters.
func (i *ImageEncoder) Parameters() []*anydiff.Var {
	return append(i.Backbone.Parameters(), i.Projection.Parameters()...)
}

// Frozen reports whether p belongs to the backbone.
func (i *ImageEncoder) Frozen(p *anydiff.Var) bool {
	for _, x := range i.Backbone.Parameters() {
		if x == p {
			return true
		}
	}
	return false
}

// Model is a recurrent caption generator.
type Model struct {
	Config Config

	Embedding   *Embedding
	ArticleProj *Linear
	Image       *ImageEncoder

	InputWeights   *Linear
	StateWeights   *Linear
	ContextWeights *Linear
	Output         *Linear

	Dropout *Dropout
}

// New creates a randomly initialized Model.
// Models created with the same Config are identical.
func New(c anyvec.Creator, cfg Config) *Model {
	gen := rand.New(rand.NewSource(cfg.Seed))
	h := cfg.HiddenDim
	return &Model{
		Config:      cfg,
		Embedding:   NewEmbedding(c, gen, cfg.VocabSize, cfg.EmbedDim),
		ArticleProj: NewLinear(c, gen, cfg.EmbedDim, h, true),
		Image: &ImageEncoder{
			Backbone:   NewLinear(c, gen, cfg.ImageSize, cfg.FeatureDim, true),
			Projection: NewLinear(c, gen, cfg.FeatureDim, h, true),
		},
		InputWeights:   NewLinear(c, gen, cfg.EmbedDim, h, true),
		StateWeights:   NewLinear(c, gen, h, h, false),
		ContextWeights: NewLinear(c, gen, h, h, false),
		Output:         NewLinear(c, gen, h, cfg.VocabSize, true),
		Dropout: &Dropout{
			KeepProb: 1 - cfg.Dropout,
			Rand:     rand.New(rand.NewSource(cfg.Seed + 1)),
		},
	}
}

// Parameters returns every parameter, in a fixed order.
func (m *Model) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	res = append(res, m.Embedding.Table)
	res = append(res, m.ArticleProj.Parameters()...)
	res = append(res, m.Image.Parameters()...)
	for _, l := range []*Linear{m.InputWeights, m.StateWeights, m.ContextWeights, m.Output} {
		res = append(res, l.Parameters()...)
	}
	return res
}

// Encoder returns the image encoder.
func (m *Model) Encoder() anycap.ImageEncoder {
	return m.Image
}

// SetTraining enables or disables dropout.
func (m *Model) SetTraining(training bool) {
	m.Dropout.Enabled = training
}

// VocabSize returns the size of the output distribution.
func (m *Model) VocabSize() int {
	return m.Config.VocabSize
}

// Forward computes log-probabilities conditioned on the
// reference captions.
//
// The decoder reads the start token followed by every
// caption token but the last, so position t predicts
// caption token t.
func (m *Model) Forward(b *anycap.Batch) anydiff.Res {
	n, capLen := b.Size(), b.CaptionLen()
	context := m.context(b)

	h := context
	hidden := make([]anydiff.Res, capLen)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = m.Config.StartID
	}
	for t := 0; t < capLen; t++ {
		h = m.step(m.Embedding.Lookup(prev), h, context, n)
		hidden[t] = h
		for i, row := range b.CaptionIDs {
			prev[i] = row[t]
		}
	}

	// Reorder the time-major hidden states into
	// example-major rows.
	hiddenDim := m.Config.HiddenDim
	var rows []anydiff.Res
	for i := 0; i < n; i++ {
		for t := 0; t < capLen; t++ {
			rows = append(rows, anydiff.Slice(hidden[t], i*hiddenDim, (i+1)*hiddenDim))
		}
	}
	return m.logProbs(anydiff.Concat(rows...), n*capLen)
}

// StartDecode prepares greedy decoding.
func (m *Model) StartDecode(b *anycap.Batch) anycap.DecodeState {
	n := b.Size()
	context := m.context(b)
	start := make([]int, n)
	for i := range start {
		start[i] = m.Config.StartID
	}
	h := m.step(m.Embedding.Lookup(start), context, context, n)
	return &decodeState{
		Model:   m,
		Context: anydiff.NewConst(context.Output()),
		Hidden:  h.Output(),
	}
}

func (m *Model) context(b *anycap.Batch) anydiff.Res {
	n := b.Size()
	c := m.Embedding.Table.Vector.Creator()
	image := m.Image.Apply(constVector(c, b.Images), n)
	article := m.ArticleProj.Apply(m.pooledArticle(b), n)
	return anydiff.Tanh(anydiff.Add(image, article))
}

// pooledArticle computes the masked mean of the article
// token embeddings for every example.
func (m *Model) pooledArticle(b *anycap.Batch) anydiff.Res {
	n, artLen := b.Size(), b.ArticleLen()
	c := m.Embedding.Table.Vector.Creator()
	if artLen == 0 {
		return anydiff.NewConst(c.MakeVector(n * m.Config.EmbedDim))
	}

	var emb anydiff.Res
	if b.EmbedDim == m.Config.EmbedDim && b.ArticleEmb != nil {
		emb = constVector(c, b.ArticleEmb)
	} else {
		var ids []int
		for _, row := range b.ArticleIDs {
			ids = append(ids, row...)
		}
		emb = m.Embedding.Lookup(ids)
	}

	mask := anycap.Float64s(b.ArticleMask)
	pool := make([]float64, n*n*artLen)
	for i := 0; i < n; i++ {
		var count float64
		for j := 0; j < artLen; j++ {
			count += mask[i*artLen+j]
		}
		if count == 0 {
			continue
		}
		for j := 0; j < artLen; j++ {
			pool[i*n*artLen+i*artLen+j] = mask[i*artLen+j] / count
		}
	}
	poolMat := &anydiff.Matrix{
		Data: anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(pool))),
		Rows: n,
		Cols: n * artLen,
	}
	embMat := &anydiff.Matrix{Data: emb, Rows: n * artLen, Cols: m.Config.EmbedDim}
	return anydiff.MatMul(false, false, poolMat, embMat).Data
}

func (m *Model) step(x, h, context anydiff.Res, n int) anydiff.Res {
	return anydiff.Tanh(anydiff.Add(
		m.InputWeights.Apply(x, n),
		anydiff.Add(m.StateWeights.Apply(h, n), m.ContextWeights.Apply(context, n)),
	))
}

func (m *Model) logProbs(hidden anydiff.Res, rows int) anydiff.Res {
	out := m.Output.Apply(m.Dropout.Apply(hidden), rows)
	return anydiff.LogSoftmax(out, m.Config.VocabSize)
}

type decodeState struct {
	Model   *Model
	Context anydiff.Res
	Hidden  anyvec.Vector
}

func (d *decodeState) Next(prev []int) anyvec.Vector {
	n := len(prev)
	if d.Hidden.Len() != n*d.Model.Config.HiddenDim {
		panic(fmt.Sprintf("expected %d tokens but got %d",
			d.Hidden.Len()/d.Model.Config.HiddenDim, n))
	}
	x := d.Model.Embedding.Lookup(prev)
	h := d.Model.step(x, anydiff.NewConst(d.Hidden), d.Context, n)
	d.Hidden = h.Output()
	return d.Model.logProbs(h, n).Output()
}

func constVector(c anyvec.Creator, v anyvec.Vector) anydiff.Res {
	if v.Creator() == c {
		return anydiff.NewConst(v)
	}
	return anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(anycap.Float64s(v))))
}
