package anytrain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anyeval"
	"github.com/unixpickle/anycap/anylog"
	"github.com/unixpickle/essentials"
)

// A ValResult summarizes a validation pass.
type ValResult struct {
	Loss       float64
	Perplexity float64
	Score      float64
	Extra      map[string]float64
}

// A Validator evaluates a model on held-out data.
type Validator struct {
	Model    anycap.Model
	Device   *anycap.Device
	Loss     anycap.CrossEntropy
	Pipeline *anyeval.Pipeline
	Source   Source

	// ScoreName names the selection score in logs and
	// metrics.
	ScoreName string

	// HypDir, if set, receives the hypotheses of every
	// pass as hyps_<epoch>.json.
	HypDir string

	Recorder *anylog.Recorder
	Logger   *slog.Logger
}

// Validate runs a validation pass in inference mode.
// No parameters are changed.
//
// Hypotheses left in the pipeline by an earlier failed
// pass are discarded.
func (v *Validator) Validate(ctx context.Context, epoch int) (*ValResult, error) {
	v.Model.SetTraining(false)
	defer v.Model.SetTraining(true)
	v.Pipeline.Reset()

	batches := v.Source(ctx)
	defer batches.Close()

	var losses anycap.AverageMeter
	for {
		b, err := batches.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, essentials.AddCtx("validate", err)
		}
		if v.Device != nil {
			b = v.Device.Transfer(b)
		}
		logProbs := v.Model.Forward(b)
		loss := v.Loss.Loss(logProbs, b, v.Model.VocabSize())
		losses.Update(anycap.ScalarValue(loss), float64(b.DecodeTotal()))
		v.Pipeline.Collect(v.Model, b)
	}
	if err := batches.Close(); err != nil {
		return nil, essentials.AddCtx("validate", err)
	}

	scores, err := v.Pipeline.Finish()
	if err != nil {
		return nil, essentials.AddCtx("validate", err)
	}
	if v.HypDir != "" {
		if err := os.MkdirAll(v.HypDir, 0755); err != nil {
			return nil, essentials.AddCtx("validate", err)
		}
		path := filepath.Join(v.HypDir, fmt.Sprintf("hyps_%d.json", epoch))
		if err := anyeval.SaveHypotheses(path, scores.Hypotheses); err != nil {
			return nil, essentials.AddCtx("validate", err)
		}
	}

	res := &ValResult{
		Loss:       losses.Avg(),
		Perplexity: losses.Perplexity(),
		Score:      scores.Score,
		Extra:      scores.Extra,
	}
	name := v.scoreName()
	args := []any{"epoch", epoch, "loss", res.Loss, "perplexity", res.Perplexity, name, res.Score}
	extraNames := make([]string, 0, len(res.Extra))
	for k := range res.Extra {
		extraNames = append(extraNames, k)
	}
	sort.Strings(extraNames)
	for _, k := range extraNames {
		args = append(args, k, res.Extra[k])
	}
	v.logger().Info("validation", args...)
	v.Recorder.ScalarSummary("loss", res.Loss, epoch)
	v.Recorder.ScalarSummary("perplexity", res.Perplexity, epoch)
	v.Recorder.ScalarSummary(name, res.Score, epoch)
	for _, k := range extraNames {
		v.Recorder.ScalarSummary(k, res.Extra[k], epoch)
	}
	return res, nil
}

func (v *Validator) scoreName() string {
	if v.ScoreName != "" {
		return v.ScoreName
	}
	return "cider"
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
