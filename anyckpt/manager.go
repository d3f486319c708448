package anyckpt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A Manager writes checkpoints for one dataset into a
// directory.
type Manager struct {
	Dir      string
	DataName string

	Logger *slog.Logger
}

// Path returns the path of the latest checkpoint.
func (m *Manager) Path() string {
	return filepath.Join(m.Dir, "checkpoint_"+m.DataName+".ckpt")
}

// BestPath returns the path of the best checkpoint.
func (m *Manager) BestPath() string {
	return filepath.Join(m.Dir, "BEST_checkpoint_"+m.DataName+".ckpt")
}

// Save writes the checkpoint to Path(), and also to
// BestPath() if isBest is set.
//
// Files are replaced atomically, so a reader never sees a
// partially written checkpoint.
func (m *Manager) Save(c *Checkpoint, isBest bool) error {
	data, err := serializer.SerializeWithType(c)
	if err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	paths := []string{m.Path()}
	if isBest {
		paths = append(paths, m.BestPath())
	}
	for _, path := range paths {
		if err := writeAtomic(path, data); err != nil {
			return essentials.AddCtx("save checkpoint", err)
		}
	}
	m.logger().Debug("saved checkpoint", "epoch", c.Epoch, "best", isBest, "path", m.Path())
	return nil
}

// Restore reads a checkpoint file written by Save.
func Restore(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("restore checkpoint", err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		return nil, fmt.Errorf("restore checkpoint %s: %w", path, err)
	}
	c, ok := obj.(*Checkpoint)
	if !ok {
		return nil, fmt.Errorf("restore checkpoint %s: unexpected type %T", path, obj)
	}
	return c, nil
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
