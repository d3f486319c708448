// Package anyckpt stores and restores training state.
//
// A checkpoint is a serializer record of named fields.
// Model parameters are stored as raw vectors and optimizer
// states as their binary encodings, so a checkpoint can be
// restored without the process that wrote it.
package anyckpt

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Checkpoint
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeCheckpoint)
}

// ErrMissingField is returned when a checkpoint lacks one
// of its required fields.
var ErrMissingField = errors.New("checkpoint is missing a required field")

// Field names of the checkpoint record.
const (
	FieldEpoch                  = "epoch"
	FieldEpochsSinceImprovement = "epochs_since_improvement"
	FieldDecoder                = "decoder"
	FieldEncoderOptimizer       = "encoder_optimizer"
	FieldDecoderOptimizer       = "decoder_optimizer"
	FieldScore                  = "score"
	FieldBestScore              = "best_score"
	FieldDataName               = "data_name"
)

var requiredFields = []string{
	FieldEpoch,
	FieldEpochsSinceImprovement,
	FieldDecoder,
	FieldScore,
}

// A Checkpoint is a snapshot of training taken at the end
// of an epoch.
type Checkpoint struct {
	Epoch                  int
	EpochsSinceImprovement int

	// Decoder stores the model parameters, in the order of
	// the model's Parameters().
	Decoder []anyvec.Vector

	// EncoderOptimizer and DecoderOptimizer are encoded
	// optimizer states.
	// Either may be nil if no optimizer was saved.
	EncoderOptimizer []byte
	DecoderOptimizer []byte

	// Score is the validation score of the epoch.
	Score float64

	// BestScore is the best validation score so far.
	BestScore float64

	DataName string
}

// NextEpoch returns the epoch at which a resumed run
// should start.
func (c *Checkpoint) NextEpoch() int {
	return c.Epoch + 1
}

// DeserializeCheckpoint decodes a Checkpoint.
func DeserializeCheckpoint(d []byte) (*Checkpoint, error) {
	fields, err := decodeFields(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize checkpoint", err)
	}
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("deserialize checkpoint: %w: %s", ErrMissingField, name)
		}
	}

	res := &Checkpoint{
		EncoderOptimizer: nonEmpty(fields[FieldEncoderOptimizer]),
		DecoderOptimizer: nonEmpty(fields[FieldDecoderOptimizer]),
	}
	var epoch, counter serializer.Int
	var score, best serializer.Float64
	var dataName serializer.String
	decodes := []struct {
		name string
		dest interface{}
	}{
		{FieldEpoch, &epoch},
		{FieldEpochsSinceImprovement, &counter},
		{FieldScore, &score},
		{FieldBestScore, &best},
		{FieldDataName, &dataName},
	}
	for _, x := range decodes {
		data, ok := fields[x.name]
		if !ok {
			continue
		}
		if err := serializer.DeserializeAny(data, x.dest); err != nil {
			return nil, essentials.AddCtx("deserialize checkpoint field "+x.name, err)
		}
	}
	res.Epoch = int(epoch)
	res.EpochsSinceImprovement = int(counter)
	res.Score = float64(score)
	res.BestScore = float64(best)
	res.DataName = string(dataName)

	vecs, err := serializer.DeserializeSlice(fields[FieldDecoder])
	if err != nil {
		return nil, essentials.AddCtx("deserialize checkpoint field "+FieldDecoder, err)
	}
	for i, x := range vecs {
		s, ok := x.(*anyvecsave.S)
		if !ok {
			return nil, fmt.Errorf("deserialize checkpoint: parameter %d is %T, not a vector", i, x)
		}
		res.Decoder = append(res.Decoder, s.Vector)
	}
	return res, nil
}

// SerializerType returns the unique ID used to serialize
// a Checkpoint with the serializer package.
func (c *Checkpoint) SerializerType() string {
	return "github.com/unixpickle/anycap/anyckpt.Checkpoint"
}

// Serialize encodes the checkpoint.
func (c *Checkpoint) Serialize() ([]byte, error) {
	var params []serializer.Serializer
	for _, v := range c.Decoder {
		params = append(params, &anyvecsave.S{Vector: v})
	}
	decoder, err := serializer.SerializeSlice(params)
	if err != nil {
		return nil, essentials.AddCtx("serialize checkpoint", err)
	}

	var record []serializer.Serializer
	add := func(name string, payload []byte) {
		record = append(record, serializer.String(name), serializer.Bytes(payload))
	}
	scalars := []struct {
		name  string
		value interface{}
	}{
		{FieldEpoch, serializer.Int(c.Epoch)},
		{FieldEpochsSinceImprovement, serializer.Int(c.EpochsSinceImprovement)},
		{FieldScore, serializer.Float64(c.Score)},
		{FieldBestScore, serializer.Float64(c.BestScore)},
		{FieldDataName, serializer.String(c.DataName)},
	}
	for _, s := range scalars {
		data, err := serializer.SerializeAny(s.value)
		if err != nil {
			return nil, essentials.AddCtx("serialize checkpoint", err)
		}
		add(s.name, data)
	}
	add(FieldDecoder, decoder)
	add(FieldEncoderOptimizer, c.EncoderOptimizer)
	add(FieldDecoderOptimizer, c.DecoderOptimizer)

	return serializer.SerializeSlice(record)
}

func decodeFields(d []byte) (map[string][]byte, error) {
	record, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, err
	}
	if len(record)%2 != 0 {
		return nil, errors.New("odd number of record entries")
	}
	res := map[string][]byte{}
	for i := 0; i < len(record); i += 2 {
		name, ok := record[i].(serializer.String)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected field name but got %T", i, record[i])
		}
		payload, ok := record[i+1].(serializer.Bytes)
		if !ok {
			return nil, fmt.Errorf("field %s: expected bytes but got %T", name, record[i+1])
		}
		res[string(name)] = payload
	}
	return res, nil
}

func nonEmpty(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}
