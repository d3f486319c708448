package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anycap/anyckpt"
	"github.com/unixpickle/anycap/anydata"
	"github.com/unixpickle/anycap/anyeval"
	"github.com/unixpickle/anycap/anylog"
	"github.com/unixpickle/anycap/anyref"
	"github.com/unixpickle/anycap/anytrain"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a caption model",
		Args:  cobra.NoArgs,
		RunE:  trainHandler,
	}
	cmd.Flags().String("config", "", "JSON config file; flags override its values")
	addConfigFlags(cmd.Flags(), anytrain.DefaultConfig())
	return cmd
}

func trainHandler(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(cmd.Flags(), configPath)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel).With("run", runID)
	logger.Info("starting run", "data_name", cfg.DataName, "model_path", cfg.ModelPath)
	if cfg.AlphaC != 1 || cfg.SaveStep != anytrain.DefaultConfig().SaveStep {
		logger.Debug("alpha_c and save_step are accepted but unused",
			"alpha_c", cfg.AlphaC, "save_step", cfg.SaveStep)
	}

	device := anycap.NewDevice(cfg.Device, logger)
	vocab, err := anydata.LoadVocab(cfg.VocabFile)
	if err != nil {
		return err
	}
	trainData, err := anydata.LoadNewsDataset(cfg.ImageDir,
		filepath.Join(cfg.AnnPath, "train.json"), cfg.ImageSize)
	if err != nil {
		return err
	}
	devData, err := anydata.LoadNewsDataset(cfg.ImageDir,
		filepath.Join(cfg.AnnPath, "val.json"), cfg.ImageSize)
	if err != nil {
		return err
	}
	logger.Info("loaded datasets", "train_size", trainData.Len(), "dev_size", devData.Len(),
		"vocab_size", vocab.Size())
	truth, err := anyeval.LoadGroundTruth(cfg.GTSFileDev)
	if err != nil {
		return err
	}

	model := anyref.New(device.Creator, anyref.Config{
		VocabSize:  vocab.Size(),
		EmbedDim:   cfg.EmbedDim,
		HiddenDim:  cfg.HiddenDim,
		ImageSize:  3 * cfg.ImageSize * cfg.ImageSize,
		FeatureDim: cfg.FeatureDim,
		Dropout:    cfg.Dropout,
		StartID:    vocab.StartID(),
		Seed:       cfg.Seed,
	})
	total, trainable := anycap.CountParameters(model)
	logger.Info("created model", "total_params", total, "trainable_params", trainable,
		"device", device.Name)

	state, err := anytrain.NewState(cfg, model, logger)
	if err != nil {
		return err
	}

	trainSink, err := anylog.NewFileSink(filepath.Join(cfg.ModelPath, "train"), runID)
	if err != nil {
		return err
	}
	defer trainSink.Close()
	devSink, err := anylog.NewFileSink(filepath.Join(cfg.ModelPath, "dev"), runID)
	if err != nil {
		return err
	}
	defer devSink.Close()
	trainRecorder := &anylog.Recorder{Sink: trainSink, Logger: logger}
	devRecorder := &anylog.Recorder{Sink: devSink, Logger: logger}

	loss := anycap.CrossEntropy{MaskPadding: cfg.MaskPadding}
	trainer := &anytrain.Trainer{
		Model:       model,
		Coordinator: state.Coordinator,
		Device:      device,
		Loss:        loss,
		GradClip:    cfg.GradClip,
		Source: anytrain.LoaderSource(&anydata.Loader{
			Dataset:    trainData,
			Creator:    device.Creator,
			BatchSize:  cfg.BatchSize,
			PadID:      vocab.PadID(),
			Shuffle:    true,
			Rand:       rand.New(rand.NewSource(cfg.Seed)),
			NumWorkers: cfg.NumWorkers,
		}),
		LogStep:  cfg.LogStep,
		Recorder: trainRecorder,
		Logger:   logger,
	}
	validator := &anytrain.Validator{
		Model:  model,
		Device: device,
		Loss:   loss,
		Pipeline: &anyeval.Pipeline{
			Decoder: &anyeval.Greedy{Vocab: vocab},
			Scorer:  &anyeval.CIDEr{Truth: truth},
			Extra:   map[string]anyeval.Scorer{"bleu4": &anyeval.BLEU{Truth: truth}},
		},
		Source: anytrain.LoaderSource(&anydata.Loader{
			Dataset:    devData,
			Creator:    device.Creator,
			BatchSize:  1,
			PadID:      vocab.PadID(),
			NumWorkers: cfg.NumWorkers,
		}),
		HypDir:   filepath.Join(cfg.ModelPath, "dev"),
		Recorder: devRecorder,
		Logger:   logger,
	}

	controller := anytrain.NewController(cfg, trainer, validator)
	controller.Checkpoints = &anyckpt.Manager{
		Dir:      cfg.ModelPath,
		DataName: cfg.DataName,
		Logger:   logger,
	}
	controller.Recorder = trainRecorder
	controller.Logger = logger

	r := rip.NewRIP()
	defer r.Close()
	controller.Stop = r.Chan()
	logger.Info("press ctrl+c to stop after the current epoch")

	res, err := controller.Run(cmd.Context(), state)
	if res != nil {
		printSummary(res)
	}
	if err != nil {
		return essentials.AddCtx("train", err)
	}
	logger.Info("finished", "best_score", state.BestScore, "stopped_early", res.Stopped,
		"interrupted", res.Interrupted, slog.Int("next_epoch", state.Epoch))
	return nil
}

func printSummary(res *anytrain.RunResult) {
	if len(res.Epochs) == 0 {
		return
	}
	var data [][]string
	for _, r := range res.Epochs {
		val, score := "-", "-"
		if r.Validated {
			val = fmt.Sprintf("%.4f", r.ValLoss)
			score = fmt.Sprintf("%.4f", r.Score)
		}
		data = append(data, []string{
			strconv.Itoa(r.Epoch),
			r.Phase.String(),
			fmt.Sprintf("%.4f", r.TrainLoss),
			val,
			score,
			strconv.FormatBool(r.IsBest),
			strconv.Itoa(r.EpochsSinceImprovement),
			fmt.Sprintf("%g", r.LearningRate),
		})
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"EPOCH", "PHASE", "TRAIN LOSS", "VAL LOSS", "SCORE", "BEST",
		"SINCE IMPROVEMENT", "LR"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()
}
