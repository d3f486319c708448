package anydata

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/unixpickle/anycap"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
)

// A Loader produces the batches of an epoch.
//
// Batches are collated by a pool of workers while the
// caller consumes earlier batches, but they are always
// delivered in plan order.
type Loader struct {
	Dataset   Dataset
	Creator   anyvec.Creator
	BatchSize int
	PadID     int

	// Shuffle selects a random permutation for every epoch.
	// Otherwise, batches follow dataset order.
	Shuffle bool

	// Rand is used for shuffling.
	// If nil, the global source is used.
	Rand *rand.Rand

	// NumWorkers bounds the number of batches collated at
	// once. Values below 1 are treated as 1.
	NumWorkers int
}

// NumBatches returns the number of batches per epoch.
// The last batch may be smaller than BatchSize.
func (l *Loader) NumBatches() int {
	n := l.Dataset.Len()
	return (n + l.batchSize() - 1) / l.batchSize()
}

// Plan returns the example indices of every batch in the
// next epoch.
func (l *Loader) Plan() [][]int {
	n := l.Dataset.Len()
	var order []int
	if l.Shuffle {
		if l.Rand != nil {
			order = l.Rand.Perm(n)
		} else {
			order = rand.Perm(n)
		}
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	var res [][]int
	for i := 0; i < n; i += l.batchSize() {
		res = append(res, order[i:minInt(n, i+l.batchSize())])
	}
	return res
}

// Epoch starts producing the batches of a new epoch.
//
// The caller must Close the resulting iterator.
func (l *Loader) Epoch(ctx context.Context) *Iterator {
	plan := l.Plan()
	workers := l.NumWorkers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	it := &Iterator{
		slots:    make([]chan batchResult, len(plan)),
		window:   make(chan struct{}, workers*2),
		ctx:      groupCtx,
		cancel:   cancel,
		group:    group,
		produced: make(chan struct{}),
	}
	for i := range it.slots {
		it.slots[i] = make(chan batchResult, 1)
	}

	go func() {
		defer close(it.produced)
		for i, indices := range plan {
			select {
			case it.window <- struct{}{}:
			case <-groupCtx.Done():
				return
			}
			slot := it.slots[i]
			indices := indices
			group.Go(func() error {
				b, err := l.collate(indices)
				slot <- batchResult{Batch: b, Err: err}
				return err
			})
		}
	}()

	return it
}

func (l *Loader) collate(indices []int) (*anycap.Batch, error) {
	examples := make([]*Example, len(indices))
	for i, idx := range indices {
		e, err := l.Dataset.Example(idx)
		if err != nil {
			return nil, err
		}
		examples[i] = e
	}
	b, err := Collate(l.Creator, examples, l.PadID)
	if err != nil {
		return nil, essentials.AddCtx("collate", err)
	}
	return b, nil
}

func (l *Loader) batchSize() int {
	if l.BatchSize < 1 {
		return 1
	}
	return l.BatchSize
}

type batchResult struct {
	Batch *anycap.Batch
	Err   error
}

// An Iterator yields the batches of one epoch in order.
type Iterator struct {
	slots  []chan batchResult
	window chan struct{}
	next   int

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	produced chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Len returns the number of batches in the epoch.
func (it *Iterator) Len() int {
	return len(it.slots)
}

// Next returns the next batch.
// After the last batch, it returns io.EOF.
func (it *Iterator) Next() (*anycap.Batch, error) {
	if it.next >= len(it.slots) {
		return nil, io.EOF
	}
	select {
	case res := <-it.slots[it.next]:
		it.next++
		<-it.window
		if res.Err != nil {
			it.Close()
			return nil, res.Err
		}
		return res.Batch, nil
	case <-it.ctx.Done():
		if err := it.Close(); err != nil {
			return nil, err
		}
		return nil, it.ctx.Err()
	}
}

// Close stops producing batches and waits for the workers
// to exit.
// It returns the first worker error, if any.
func (it *Iterator) Close() error {
	it.closeOnce.Do(func() {
		it.cancel()
		<-it.produced
		it.closeErr = it.group.Wait()
	})
	return it.closeErr
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}
