// Package anytrain implements the epoch-level training
// loop of a caption model: training passes, validation,
// early stopping, learning rate decay, and checkpoints.
package anytrain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/unixpickle/essentials"
)

// Config holds every option of a training run.
//
// The mapstructure tags double as command-line flag names
// and as keys of a JSON config file.
type Config struct {
	DataName string `mapstructure:"data_name"`

	// ModelPath is the directory for checkpoints, metrics
	// and hypotheses.
	ModelPath  string `mapstructure:"model_path"`
	ImageDir   string `mapstructure:"image_dir"`
	AnnPath    string `mapstructure:"ann_path"`
	GTSFileDev string `mapstructure:"gts_file_dev"`
	VocabFile  string `mapstructure:"vocab_file"`

	// Checkpoint, if set, is a checkpoint to resume from.
	Checkpoint string `mapstructure:"checkpoint"`

	LogStep  int `mapstructure:"log_step"`
	SaveStep int `mapstructure:"save_step"`

	EmbedDim   int     `mapstructure:"embed_dim"`
	HiddenDim  int     `mapstructure:"hidden_dim"`
	FeatureDim int     `mapstructure:"feature_dim"`
	ImageSize  int     `mapstructure:"image_size"`
	Dropout    float64 `mapstructure:"dropout"`

	StartEpoch             int     `mapstructure:"start_epoch"`
	Epochs                 int     `mapstructure:"epochs"`
	EpochsSinceImprovement int     `mapstructure:"epochs_since_improvement"`
	BestCIDEr              float64 `mapstructure:"best_cider"`

	BatchSize  int `mapstructure:"batch_size"`
	NumWorkers int `mapstructure:"num_workers"`

	EncoderLR float64 `mapstructure:"encoder_lr"`
	DecoderLR float64 `mapstructure:"decoder_lr"`
	GradClip  float64 `mapstructure:"grad_clip"`
	AlphaC    float64 `mapstructure:"alpha_c"`

	WarmupEpochs int     `mapstructure:"warmup_epochs"`
	StopAfter    int     `mapstructure:"stop_after"`
	DecayEvery   int     `mapstructure:"decay_every"`
	DecayFactor  float64 `mapstructure:"decay_factor"`

	MaskPadding bool   `mapstructure:"mask_padding"`
	Device      string `mapstructure:"device"`
	Seed        int64  `mapstructure:"seed"`
	LogLevel    string `mapstructure:"log_level"`
}

// DefaultConfig returns the default options.
func DefaultConfig() *Config {
	return &Config{
		DataName:   "ClipNews_GoodNews",
		ModelPath:  "model_save",
		ImageDir:   "images_processed",
		AnnPath:    ".",
		GTSFileDev: "val_gts.json",
		VocabFile:  "vocab.json",

		LogStep:  100,
		SaveStep: 1000,

		EmbedDim:   768,
		HiddenDim:  512,
		FeatureDim: 256,
		ImageSize:  64,
		Dropout:    0.3,

		Epochs:     150,
		BatchSize:  128,
		NumWorkers: 6,

		EncoderLR: 0.0005,
		DecoderLR: 0.0005,
		GradClip:  1,
		AlphaC:    1,

		WarmupEpochs: 4,
		StopAfter:    20,
		DecayEvery:   6,
		DecayFactor:  0.6,

		MaskPadding: true,
		Device:      "cpu",
		LogLevel:    "info",
	}
}

// LoadConfigFile overrides fields of c with the keys of a
// JSON object.
// Unknown keys are an error.
func LoadConfigFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return essentials.AddCtx("load config", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return essentials.AddCtx("load config "+path, err)
	}
	return DecodeConfig(raw, c)
}

// DecodeConfig overrides fields of c with the entries of
// a generic map, converting types where needed.
func DecodeConfig(raw map[string]interface{}, c *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return essentials.AddCtx("decode config", err)
	}
	return nil
}

// Validate checks that the options are usable.
func (c *Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.DataName != "", "data_name must be set"},
		{c.ModelPath != "", "model_path must be set"},
		{c.Epochs >= 0, "epochs must not be negative"},
		{c.StartEpoch >= 0, "start_epoch must not be negative"},
		{c.EpochsSinceImprovement >= 0, "epochs_since_improvement must not be negative"},
		{c.BatchSize > 0, "batch_size must be positive"},
		{c.NumWorkers >= 0, "num_workers must not be negative"},
		{c.EncoderLR >= 0, "encoder_lr must not be negative"},
		{c.DecoderLR > 0, "decoder_lr must be positive"},
		{c.EmbedDim > 0 && c.HiddenDim > 0 && c.FeatureDim > 0, "model dimensions must be positive"},
		{c.ImageSize > 1, "image_size must be at least 2"},
		{c.Dropout >= 0 && c.Dropout < 1, "dropout must be in [0, 1)"},
		{c.WarmupEpochs >= 0, "warmup_epochs must not be negative"},
		{c.StopAfter > 0, "stop_after must be positive"},
		{c.DecayEvery > 0, "decay_every must be positive"},
		{c.DecayFactor > 0 && c.DecayFactor <= 1, "decay_factor must be in (0, 1]"},
	}
	var errs []error
	for _, check := range checks {
		if !check.ok {
			errs = append(errs, errors.New(check.msg))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
