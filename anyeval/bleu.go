package anyeval

import "math"

// BLEU computes corpus-level BLEU with a brevity penalty.
type BLEU struct {
	Truth GroundTruth

	// N is the maximum n-gram order.
	// If it is 0, 4 is used.
	N int
}

// Score computes the corpus BLEU score, between 0 and 1.
func (b *BLEU) Score(hyps []Hypothesis) (float64, error) {
	maxN := b.N
	if maxN == 0 {
		maxN = 4
	}
	matches := make([]int, maxN)
	totals := make([]int, maxN)
	var hypLen, refLen int
	for _, h := range hyps {
		refStrs, err := b.Truth.References(h.ImageID)
		if err != nil {
			return 0, err
		}
		words := Tokenize(h.Caption)
		hypLen += len(words)
		refLen += closestLength(len(words), refStrs)

		hypCounts := countNgrams(words, maxN)
		maxRef := ngramCounts{}
		for _, r := range refStrs {
			for ngram, count := range countNgrams(Tokenize(r), maxN) {
				if count > maxRef[ngram] {
					maxRef[ngram] = count
				}
			}
		}
		for ngram, count := range hypCounts {
			n := ngramOrder(ngram) - 1
			totals[n] += count
			if clip := maxRef[ngram]; clip < count {
				matches[n] += clip
			} else {
				matches[n] += count
			}
		}
	}
	if hypLen == 0 {
		return 0, nil
	}

	var logSum float64
	for n := 0; n < maxN; n++ {
		if matches[n] == 0 || totals[n] == 0 {
			return 0, nil
		}
		logSum += math.Log(float64(matches[n]) / float64(totals[n]))
	}
	brevity := 1.0
	if hypLen < refLen {
		brevity = math.Exp(1 - float64(refLen)/float64(hypLen))
	}
	return brevity * math.Exp(logSum/float64(maxN)), nil
}

// closestLength finds the reference length closest to
// hypLen, preferring the shorter one on ties.
func closestLength(hypLen int, refs []string) int {
	best := -1
	for _, r := range refs {
		l := len(Tokenize(r))
		if best < 0 {
			best = l
			continue
		}
		d, bestD := absInt(l-hypLen), absInt(best-hypLen)
		if d < bestD || (d == bestD && l < best) {
			best = l
		}
	}
	return best
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
