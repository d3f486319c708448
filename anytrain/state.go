package anytrain

import (
	"context"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anydata"
	"github.com/unixpickle/anycap/anysgd"
)

// A Phase is a stage of training.
type Phase int

const (
	// Warmup epochs are not validated and always count as
	// the best epoch so far.
	Warmup Phase = iota
	Active
)

func (p Phase) String() string {
	if p == Warmup {
		return "warmup"
	}
	return "active"
}

// State is the mutable state of a training run.
// It is owned by the Controller.
type State struct {
	// Epoch is the next epoch to run.
	Epoch int

	EpochsSinceImprovement int
	BestScore              float64

	Model       anycap.Model
	Coordinator *anysgd.Coordinator
}

// An EpochResult summarizes one finished epoch.
type EpochResult struct {
	Epoch int
	Phase Phase

	TrainLoss float64

	// Validated is false for warmup epochs, in which case
	// ValLoss and Score are zero.
	Validated bool
	ValLoss   float64
	Score     float64

	IsBest                 bool
	EpochsSinceImprovement int
	LearningRate           float64
}

// Batches yields the batches of one pass over a dataset.
// Next returns io.EOF after the last batch.
type Batches interface {
	Next() (*anycap.Batch, error)
	Close() error
}

// A Source starts a new pass over a dataset.
type Source func(ctx context.Context) Batches

// LoaderSource creates a Source which reads from a
// Loader.
func LoaderSource(l *anydata.Loader) Source {
	return func(ctx context.Context) Batches {
		return l.Epoch(ctx)
	}
}
