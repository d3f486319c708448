package anylog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/unixpickle/essentials"
)

// A Sink stores scalar time series, such as the loss of
// every epoch.
type Sink interface {
	ScalarSummary(name string, value float64, step int) error
}

// A Scalar is one point of a scalar time series.
type Scalar struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Step  int       `json:"step"`
	Time  time.Time `json:"time"`
	Run   string    `json:"run,omitempty"`
}

// A FileSink appends scalars as JSON lines to a file.
type FileSink struct {
	// Run, if set, tags every scalar with a run id.
	Run string

	lock sync.Mutex
	f    *os.File
	enc  *json.Encoder
}

// NewFileSink opens (or creates) dir/scalars.jsonl for
// appending.
func NewFileSink(dir, run string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, essentials.AddCtx("create file sink", err)
	}
	path := filepath.Join(dir, "scalars.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, essentials.AddCtx("create file sink", err)
	}
	return &FileSink{Run: run, f: f, enc: json.NewEncoder(f)}, nil
}

// ScalarSummary appends one scalar to the file.
func (f *FileSink) ScalarSummary(name string, value float64, step int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.f == nil {
		return errors.New("scalar summary: sink is closed")
	}
	return f.enc.Encode(&Scalar{
		Name:  name,
		Value: value,
		Step:  step,
		Time:  time.Now(),
		Run:   f.Run,
	})
}

// Close closes the underlying file.
func (f *FileSink) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// ReadScalars reads every scalar from a file written by a
// FileSink.
func ReadScalars(path string) ([]*Scalar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read scalars", err)
	}
	defer f.Close()
	var res []*Scalar
	dec := json.NewDecoder(f)
	for dec.More() {
		var s Scalar
		if err := dec.Decode(&s); err != nil {
			return nil, essentials.AddCtx("read scalars", err)
		}
		res = append(res, &s)
	}
	return res, nil
}

// A Recorder forwards scalars to a Sink and isolates the
// caller from its failures: errors are logged, never
// returned.
//
// A nil Sink discards every scalar.
type Recorder struct {
	Sink   Sink
	Logger *slog.Logger
}

// ScalarSummary records a scalar.
func (r *Recorder) ScalarSummary(name string, value float64, step int) {
	if r == nil || r.Sink == nil {
		return
	}
	if err := r.Sink.ScalarSummary(name, value, step); err != nil {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("metric sink failed", "name", name, "step", step, "error", err)
	}
}
