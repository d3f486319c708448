package anylog

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
)

type failingSink struct {
	calls int
}

func (f *failingSink) ScalarSummary(name string, value float64, step int) error {
	f.calls++
	return errors.New("disk full")
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.ScalarSummary("loss", 2.5, 0); err != nil {
		t.Fatal(err)
	}
	if err := sink.ScalarSummary("loss", 1.5, 1); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if sink.ScalarSummary("loss", 1, 2) == nil {
		t.Error("expected error after close")
	}

	scalars, err := ReadScalars(filepath.Join(dir, "scalars.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(scalars) != 2 {
		t.Fatalf("expected 2 scalars but got %d", len(scalars))
	}
	if scalars[1].Name != "loss" || scalars[1].Value != 1.5 || scalars[1].Step != 1 ||
		scalars[1].Run != "run-1" {
		t.Errorf("unexpected scalar: %+v", scalars[1])
	}
}

func TestRecorderIsolatesFailures(t *testing.T) {
	sink := &failingSink{}
	r := &Recorder{Sink: sink, Logger: NewLogger(io.Discard, LevelTrace)}
	r.ScalarSummary("loss", 1, 0)
	r.ScalarSummary("loss", 1, 1)
	if sink.calls != 2 {
		t.Errorf("expected 2 calls but got %d", sink.calls)
	}

	var nilRecorder *Recorder
	nilRecorder.ScalarSummary("loss", 1, 0)
	(&Recorder{}).ScalarSummary("loss", 1, 0)
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("trace") != LevelTrace {
		t.Error("bad trace level")
	}
	if ParseLevel("debug") != -4 {
		t.Error("bad debug level")
	}
	if ParseLevel("nonsense") != 0 {
		t.Error("unknown levels should map to info")
	}
}
