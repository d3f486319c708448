package anyeval

import (
	"math"
)

// CIDEr computes the CIDEr-D consensus score of captions,
// as computed by the COCO caption evaluation toolkit.
//
// Document frequencies are taken from the references of
// the scored images, so the score of a caption depends on
// the whole corpus.
type CIDEr struct {
	Truth GroundTruth

	// N is the maximum n-gram order.
	// If it is 0, 4 is used.
	N int

	// Sigma is the width of the Gaussian length penalty.
	// If it is 0, 6 is used.
	Sigma float64
}

// Score computes the corpus score: the mean of the
// per-image scores.
func (c *CIDEr) Score(hyps []Hypothesis) (float64, error) {
	scores, err := c.ImageScores(hyps)
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), nil
}

// ImageScores computes one score per hypothesis.
func (c *CIDEr) ImageScores(hyps []Hypothesis) ([]float64, error) {
	maxN := c.n()
	tests := make([]ngramCounts, len(hyps))
	refs := make([][]ngramCounts, len(hyps))
	for i, h := range hyps {
		refStrs, err := c.Truth.References(h.ImageID)
		if err != nil {
			return nil, err
		}
		tests[i] = countNgrams(Tokenize(h.Caption), maxN)
		for _, r := range refStrs {
			refs[i] = append(refs[i], countNgrams(Tokenize(r), maxN))
		}
	}

	docFreq := map[string]int{}
	for _, imageRefs := range refs {
		seen := map[string]bool{}
		for _, r := range imageRefs {
			for ngram := range r {
				seen[ngram] = true
			}
		}
		for ngram := range seen {
			docFreq[ngram]++
		}
	}
	refLen := math.Log(float64(len(refs)))

	scores := make([]float64, len(hyps))
	for i, test := range tests {
		vec, norm, length := c.tfidf(test, docFreq, refLen)
		total := make([]float64, maxN)
		for _, ref := range refs[i] {
			refVec, refNorm, refLength := c.tfidf(ref, docFreq, refLen)
			for n, v := range c.sim(vec, refVec, norm, refNorm, length, refLength) {
				total[n] += v
			}
		}
		var mean float64
		for _, v := range total {
			mean += v
		}
		mean /= float64(maxN)
		mean /= float64(len(refs[i]))
		scores[i] = mean * 10
	}
	return scores, nil
}

func (c *CIDEr) tfidf(counts ngramCounts, docFreq map[string]int,
	refLen float64) (vec []map[string]float64, norm []float64, length int) {
	maxN := c.n()
	vec = make([]map[string]float64, maxN)
	for i := range vec {
		vec[i] = map[string]float64{}
	}
	norm = make([]float64, maxN)
	for ngram, tf := range counts {
		n := ngramOrder(ngram) - 1
		df := math.Log(math.Max(1, float64(docFreq[ngram])))
		v := float64(tf) * (refLen - df)
		vec[n][ngram] = v
		norm[n] += v * v
		if n == 0 {
			length += tf
		}
	}
	for i, x := range norm {
		norm[i] = math.Sqrt(x)
	}
	return
}

func (c *CIDEr) sim(hyp, ref []map[string]float64, hypNorm, refNorm []float64,
	hypLen, refLen int) []float64 {
	delta := float64(hypLen - refLen)
	sigma := c.sigma()
	penalty := math.Exp(-(delta * delta) / (2 * sigma * sigma))
	res := make([]float64, len(hyp))
	for n := range hyp {
		for ngram, v := range hyp[n] {
			refV := ref[n][ngram]
			res[n] += math.Min(v, refV) * refV
		}
		if hypNorm[n] != 0 && refNorm[n] != 0 {
			res[n] /= hypNorm[n] * refNorm[n]
		}
		res[n] *= penalty
	}
	return res
}

func (c *CIDEr) n() int {
	if c.N == 0 {
		return 4
	}
	return c.N
}

func (c *CIDEr) sigma() float64 {
	if c.Sigma == 0 {
		return 6
	}
	return c.Sigma
}
