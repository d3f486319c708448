package anytrain

import (
	"context"
	"log/slog"

	"github.com/unixpickle/anycap/anyckpt"
	"github.com/unixpickle/anycap/anylog"
	"github.com/unixpickle/essentials"
)

// An EpochTrainer runs one training pass and returns the
// average training loss.
type EpochTrainer interface {
	TrainEpoch(ctx context.Context, epoch int) (float64, error)
}

// An EpochValidator runs one validation pass.
type EpochValidator interface {
	Validate(ctx context.Context, epoch int) (*ValResult, error)
}

// A Controller drives training epoch by epoch.
//
// Epochs up to and including WarmupEpochs are not
// validated. Later epochs are validated, and the run stops
// once StopAfter epochs in a row have not improved the
// best score.
type Controller struct {
	Trainer   EpochTrainer
	Validator EpochValidator

	// Checkpoints, if non-nil, receives a checkpoint at the
	// end of every epoch.
	Checkpoints *anyckpt.Manager
	DataName    string

	// Epochs is the index of the epoch to stop before.
	Epochs       int
	WarmupEpochs int
	StopAfter    int

	// The primary learning rate is multiplied by DecayFactor
	// when the improvement counter reaches a positive
	// multiple of DecayEvery.
	DecayEvery  int
	DecayFactor float64

	// Stop, if non-nil, is checked after every epoch's
	// checkpoint has been written.
	// Once it is closed, Run returns before the next epoch.
	Stop <-chan struct{}

	Recorder *anylog.Recorder
	Logger   *slog.Logger
}

// NewController creates a Controller using the schedule
// options of a Config.
func NewController(c *Config, t EpochTrainer, v EpochValidator) *Controller {
	return &Controller{
		Trainer:      t,
		Validator:    v,
		DataName:     c.DataName,
		Epochs:       c.Epochs,
		WarmupEpochs: c.WarmupEpochs,
		StopAfter:    c.StopAfter,
		DecayEvery:   c.DecayEvery,
		DecayFactor:  c.DecayFactor,
	}
}

// Phase returns the phase of an epoch.
func (c *Controller) Phase(epoch int) Phase {
	if epoch <= c.WarmupEpochs {
		return Warmup
	}
	return Active
}

// A RunResult summarizes a call to Run.
type RunResult struct {
	Epochs []*EpochResult

	// Stopped is set if the run ended early because the
	// score stopped improving.
	Stopped bool

	// Interrupted is set if the run ended because Stop was
	// closed.
	Interrupted bool
}

// Run trains until s.Epoch reaches c.Epochs or training
// stops improving.
//
// The state is updated after every epoch, so it can be
// inspected even if Run fails.
func (c *Controller) Run(ctx context.Context, s *State) (*RunResult, error) {
	res := &RunResult{}
	for s.Epoch < c.Epochs {
		if s.EpochsSinceImprovement >= c.StopAfter {
			c.logger().Info("stopping early", "epoch", s.Epoch,
				"epochs_since_improvement", s.EpochsSinceImprovement)
			res.Stopped = true
			break
		}
		result, err := c.runEpoch(ctx, s)
		if err != nil {
			return res, err
		}
		res.Epochs = append(res.Epochs, result)
		if c.stopRequested() {
			c.logger().Info("interrupted", "next_epoch", s.Epoch)
			res.Interrupted = true
			break
		}
	}
	return res, nil
}

func (c *Controller) runEpoch(ctx context.Context, s *State) (*EpochResult, error) {
	epoch := s.Epoch
	res := &EpochResult{Epoch: epoch, Phase: c.Phase(epoch)}

	counter := s.EpochsSinceImprovement
	if res.Phase == Active && c.DecayEvery > 0 && counter > 0 && counter%c.DecayEvery == 0 {
		lr := s.Coordinator.DecayPrimary(c.DecayFactor)
		c.logger().Info("decayed learning rate", "epoch", epoch, "learning_rate", lr)
	}
	res.LearningRate = s.Coordinator.Primary.LearningRate

	var err error
	res.TrainLoss, err = c.Trainer.TrainEpoch(ctx, epoch)
	if err != nil {
		return nil, essentials.AddCtx("run epoch", err)
	}

	if res.Phase == Active {
		val, err := c.Validator.Validate(ctx, epoch)
		if err != nil {
			return nil, essentials.AddCtx("run epoch", err)
		}
		res.Validated = true
		res.ValLoss = val.Loss
		res.Score = val.Score
		res.IsBest = val.Score > s.BestScore
		if res.IsBest {
			s.BestScore = val.Score
			s.EpochsSinceImprovement = 0
		} else {
			s.EpochsSinceImprovement++
		}
	} else {
		res.IsBest = true
	}
	res.EpochsSinceImprovement = s.EpochsSinceImprovement
	s.Epoch = epoch + 1

	c.logger().Info("epoch done", "epoch", epoch, "phase", res.Phase,
		"train_loss", res.TrainLoss, "score", res.Score, "best_score", s.BestScore,
		"is_best", res.IsBest, "epochs_since_improvement", s.EpochsSinceImprovement,
		"learning_rate", res.LearningRate)
	c.Recorder.ScalarSummary("learning_rate", res.LearningRate, epoch)
	c.Recorder.ScalarSummary("best_score", s.BestScore, epoch)

	if c.Checkpoints != nil {
		ckpt := &anyckpt.Checkpoint{
			Epoch:                  epoch,
			EpochsSinceImprovement: s.EpochsSinceImprovement,
			Score:                  res.Score,
			BestScore:              s.BestScore,
			DataName:               c.DataName,
		}
		if err := anyckpt.Capture(ckpt, s.Model, s.Coordinator); err != nil {
			return nil, essentials.AddCtx("run epoch", err)
		}
		if err := c.Checkpoints.Save(ckpt, res.IsBest); err != nil {
			return nil, essentials.AddCtx("run epoch", err)
		}
	}
	return res, nil
}

func (c *Controller) stopRequested() bool {
	if c.Stop == nil {
		return false
	}
	select {
	case <-c.Stop:
		return true
	default:
		return false
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
