package main

import (
	"fmt"
	"reflect"

	"github.com/spf13/pflag"
	"github.com/unixpickle/anycap/anytrain"
)

var flagUsage = map[string]string{
	"data_name":                "dataset name used in checkpoint file names",
	"model_path":               "directory for checkpoints, metrics and hypotheses",
	"image_dir":                "directory of resized images",
	"ann_path":                 "directory containing train.json and val.json",
	"gts_file_dev":             "ground-truth captions of the validation set",
	"vocab_file":               "JSON vocabulary file",
	"checkpoint":               "checkpoint to resume from",
	"log_step":                 "batches between progress logs",
	"save_step":                "accepted for compatibility; checkpoints are saved every epoch",
	"alpha_c":                  "accepted for compatibility; unused",
	"start_epoch":              "first epoch of a fresh run",
	"epochs_since_improvement": "initial improvement counter of a fresh run",
	"best_cider":               "initial best validation score",
	"grad_clip":                "maximum gradient norm",
	"warmup_epochs":            "epochs before validation starts",
	"stop_after":               "epochs without improvement before stopping",
	"decay_every":              "epochs without improvement between learning rate decays",
	"decay_factor":             "learning rate decay factor",
	"mask_padding":             "exclude padded caption positions from the loss",
	"device":                   "compute device: cpu, cpu32 or cpu64",
	"log_level":                "trace, debug, info, warn or error",
}

// addConfigFlags registers one flag per Config field,
// named after its mapstructure tag.
func addConfigFlags(fs *pflag.FlagSet, defaults *anytrain.Config) {
	val := reflect.ValueOf(defaults).Elem()
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Tag.Get("mapstructure")
		usage := flagUsage[name]
		switch x := val.Field(i).Interface().(type) {
		case string:
			fs.String(name, x, usage)
		case int:
			fs.Int(name, x, usage)
		case int64:
			fs.Int64(name, x, usage)
		case float64:
			fs.Float64(name, x, usage)
		case bool:
			fs.Bool(name, x, usage)
		default:
			panic(fmt.Sprintf("unsupported config field type: %T", x))
		}
	}
}

// changedFlags returns the explicitly set flags which
// correspond to Config fields.
func changedFlags(fs *pflag.FlagSet) map[string]interface{} {
	fields := map[string]bool{}
	typ := reflect.TypeOf(anytrain.Config{})
	for i := 0; i < typ.NumField(); i++ {
		fields[typ.Field(i).Tag.Get("mapstructure")] = true
	}
	res := map[string]interface{}{}
	fs.Visit(func(f *pflag.Flag) {
		if fields[f.Name] {
			res[f.Name] = f.Value.String()
		}
	})
	return res
}

// loadConfig builds a Config from defaults, an optional
// config file, and explicitly set flags, in that order.
func loadConfig(fs *pflag.FlagSet, path string) (*anytrain.Config, error) {
	cfg := anytrain.DefaultConfig()
	if path != "" {
		if err := anytrain.LoadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := anytrain.DecodeConfig(changedFlags(fs), cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
