package anyeval

import (
	"encoding/json"
	"os"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/essentials"
)

// A Scorer computes a corpus-level score for hypotheses.
// Higher scores are better.
type Scorer interface {
	Score(hyps []Hypothesis) (float64, error)
}

// A ScoreResult is the outcome of scoring a corpus.
type ScoreResult struct {
	Score      float64
	Hypotheses []Hypothesis

	// Extra contains the scores of secondary metrics.
	Extra map[string]float64
}

// A Pipeline collects hypotheses batch by batch and then
// scores them all at once.
type Pipeline struct {
	Decoder *Greedy

	// Scorer produces the score used for model selection.
	Scorer Scorer

	// Extra scorers are reported alongside the main score.
	Extra map[string]Scorer

	hyps []Hypothesis
}

// Collect decodes the batch and records its hypotheses.
// It returns the new hypotheses.
func (p *Pipeline) Collect(m anycap.Model, b *anycap.Batch) []Hypothesis {
	hyps := p.Decoder.Decode(m, b)
	p.hyps = append(p.hyps, hyps...)
	return hyps
}

// Finish scores every collected hypothesis and resets the
// pipeline for the next pass.
func (p *Pipeline) Finish() (*ScoreResult, error) {
	hyps := p.hyps
	p.hyps = nil
	return Score(hyps, p.Scorer, p.Extra)
}

// Reset drops the collected hypotheses.
func (p *Pipeline) Reset() {
	p.hyps = nil
}

// Score scores hypotheses with a main scorer and optional
// secondary scorers.
func Score(hyps []Hypothesis, main Scorer, extra map[string]Scorer) (*ScoreResult, error) {
	score, err := main.Score(hyps)
	if err != nil {
		return nil, essentials.AddCtx("score hypotheses", err)
	}
	res := &ScoreResult{
		Score:      score,
		Hypotheses: hyps,
		Extra:      map[string]float64{},
	}
	for name, s := range extra {
		val, err := s.Score(hyps)
		if err != nil {
			return nil, essentials.AddCtx("score hypotheses: "+name, err)
		}
		res.Extra[name] = val
	}
	return res, nil
}

// SaveHypotheses writes hypotheses as a JSON list.
func SaveHypotheses(path string, hyps []Hypothesis) error {
	data, err := json.MarshalIndent(hyps, "", "  ")
	if err != nil {
		return essentials.AddCtx("save hypotheses", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save hypotheses", err)
	}
	return nil
}

// LoadHypotheses reads a file written by SaveHypotheses.
func LoadHypotheses(path string) ([]Hypothesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load hypotheses", err)
	}
	var res []Hypothesis
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("load hypotheses", err)
	}
	return res, nil
}
