package anytrain

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anylog"
	"github.com/unixpickle/anycap/anysgd"
	"github.com/unixpickle/essentials"
)

// A Trainer runs training passes.
type Trainer struct {
	Model       anycap.Model
	Coordinator *anysgd.Coordinator
	Device      *anycap.Device
	Loss        anycap.CrossEntropy

	// GradClip is the maximum gradient norm.
	// A non-positive value disables clipping.
	GradClip float64

	Source Source

	// LogStep, if positive, is the number of batches
	// between progress logs.
	LogStep int

	Recorder *anylog.Recorder
	Logger   *slog.Logger
}

// Step trains on one batch.
//
// It returns the loss of the batch and the weight of the
// loss in an epoch average, which is the total decode
// length of the batch.
func (t *Trainer) Step(b *anycap.Batch) (loss float64, weight int) {
	if t.Device != nil {
		b = t.Device.Transfer(b)
	}
	grad := t.Coordinator.ZeroGrad()
	logProbs := t.Model.Forward(b)
	lossRes := t.Loss.Loss(logProbs, b, t.Model.VocabSize())

	c := lossRes.Output().Creator()
	lossRes.Propagate(c.MakeVectorData(c.MakeNumericList([]float64{1})), grad)
	norm := anysgd.ClipGradNorm(grad, t.GradClip)
	t.Coordinator.Step(grad)

	loss = anycap.ScalarValue(lossRes)
	anylog.Trace(t.logger(), "train step", "loss", loss, "grad_norm", norm)
	return loss, b.DecodeTotal()
}

// TrainEpoch runs one pass over the training set and
// returns the weighted average loss.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int) (float64, error) {
	t.Model.SetTraining(true)

	batches := t.Source(ctx)
	defer batches.Close()

	var losses, batchTime, dataTime anycap.AverageMeter
	start := time.Now()
	for i := 0; ; i++ {
		b, err := batches.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return 0, essentials.AddCtx("train epoch", err)
		}
		dataTime.Update(time.Since(start).Seconds(), 1)

		loss, weight := t.Step(b)
		losses.Update(loss, float64(weight))
		batchTime.Update(time.Since(start).Seconds(), 1)

		if t.LogStep > 0 && (i+1)%t.LogStep == 0 {
			t.logger().Info("train progress", "epoch", epoch, "batch", i+1,
				"loss", losses.Val, "avg_loss", losses.Avg(),
				"batch_time", batchTime.Avg(), "data_time", dataTime.Avg())
		}
		start = time.Now()
	}
	if err := batches.Close(); err != nil {
		return 0, essentials.AddCtx("train epoch", err)
	}

	t.logger().Info("train epoch", "epoch", epoch, "loss", losses.Avg(),
		"perplexity", losses.Perplexity(), "batch_time", batchTime.Avg(),
		"data_time", dataTime.Avg())
	t.Recorder.ScalarSummary("loss", losses.Avg(), epoch)
	t.Recorder.ScalarSummary("perplexity", losses.Perplexity(), epoch)
	return losses.Avg(), nil
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
