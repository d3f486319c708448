package anytrain

import (
	"log/slog"
	"math"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anyckpt"
	"github.com/unixpickle/anycap/anysgd"
	"github.com/unixpickle/essentials"
)

// NewState creates the initial training state for a
// model.
//
// If c.Checkpoint is set, the parameters, optimizer states
// and counters are restored from it, and a missing encoder
// optimizer is rebuilt with defaults.
// Otherwise, fresh optimizers are created and the counters
// come from c.
func NewState(c *Config, m anycap.Model, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Checkpoint == "" {
		coord := anysgd.NewCoordinator(m, c.DecoderLR, c.EncoderLR)
		coord.Logger = logger
		return &State{
			Epoch:                  c.StartEpoch,
			EpochsSinceImprovement: c.EpochsSinceImprovement,
			BestScore:              c.BestCIDEr,
			Model:                  m,
			Coordinator:            coord,
		}, nil
	}

	ckpt, err := anyckpt.Restore(c.Checkpoint)
	if err != nil {
		return nil, err
	}
	if err := ckpt.ApplyParameters(m); err != nil {
		return nil, essentials.AddCtx("resume", err)
	}
	coord, err := ckpt.Coordinator(m, c.DecoderLR)
	if err != nil {
		return nil, essentials.AddCtx("resume", err)
	}
	coord.Logger = logger
	coord.EnsureEncoder(m.Encoder(), 0)

	s := &State{
		Epoch:                  ckpt.NextEpoch(),
		EpochsSinceImprovement: ckpt.EpochsSinceImprovement,
		BestScore:              math.Max(ckpt.BestScore, c.BestCIDEr),
		Model:                  m,
		Coordinator:            coord,
	}
	logger.Info("resumed from checkpoint", "path", c.Checkpoint, "epoch", s.Epoch,
		"epochs_since_improvement", s.EpochsSinceImprovement, "best_score", s.BestScore,
		"score", ckpt.Score)
	return s, nil
}
