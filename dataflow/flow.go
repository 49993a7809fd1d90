// Package dataflow iterates mini-batches over in-memory arrays.
package dataflow

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Iterator produces the mini-batches of one pass over a Flow.
type Iterator interface {
	Next() bool
	Batch() []*tensor.Dense
	Err() error
}

// Flow is a source of mini-batches. Each call to Iter starts a new pass.
type Flow interface {
	Iter() (Iterator, error)
	BatchSize() int
	Len() int
}

// Option configures an ArrayFlow.
type Option func(*ArrayFlow)

// Shuffle permutes the rows of all the arrays together at the start of every
// pass.
func Shuffle(seed int64) Option {
	return func(f *ArrayFlow) { f.r = rand.New(rand.NewSource(seed)) }
}

// SkipIncomplete drops the last mini-batch of a pass if it is smaller than the
// batch size.
func SkipIncomplete() Option {
	return func(f *ArrayFlow) { f.skipIncomplete = true }
}

// ArrayFlow slices mini-batches out of arrays sharing their first dimension.
// A mini-batch holds one tensor per array, in order. They share memory with
// the arrays and are only valid until the next pass starts.
type ArrayFlow struct {
	arrays         []*tensor.Dense
	batchSize      int
	r              *rand.Rand
	skipIncomplete bool
}

// Arrays creates an ArrayFlow.
func Arrays(arrays []*tensor.Dense, batchSize int, opts ...Option) (*ArrayFlow, error) {
	if len(arrays) == 0 {
		return nil, errors.New("no arrays given")
	}
	if batchSize < 1 {
		return nil, errors.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	var n int
	for i, a := range arrays {
		if a.Dims() < 1 {
			return nil, errors.Errorf("array %d is a scalar", i)
		}
		if i == 0 {
			n = a.Shape()[0]
			continue
		}
		if a.Shape()[0] != n {
			return nil, errors.Errorf("array %d has %d rows, expected %d", i, a.Shape()[0], n)
		}
	}

	retVal := &ArrayFlow{
		arrays:    arrays,
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(retVal)
	}
	return retVal, nil
}

// Len returns the number of rows.
func (f *ArrayFlow) Len() int { return f.arrays[0].Shape()[0] }

// BatchSize returns the size of a full mini-batch.
func (f *ArrayFlow) BatchSize() int { return f.batchSize }

// Batches returns the number of mini-batches of one pass.
func (f *ArrayFlow) Batches() int {
	n := f.Len() / f.batchSize
	if !f.skipIncomplete && f.Len()%f.batchSize != 0 {
		n++
	}
	return n
}

// Iter starts a new pass, shuffling the arrays first if required.
func (f *ArrayFlow) Iter() (Iterator, error) {
	if f.r != nil {
		if err := shuffleRows(f.r, f.arrays); err != nil {
			return nil, err
		}
	}
	return &arrayIterator{f: f}, nil
}

type arrayIterator struct {
	f     *ArrayFlow
	next  int
	batch []*tensor.Dense
	err   error
}

func (it *arrayIterator) Next() bool {
	if it.err != nil {
		return false
	}
	n := it.f.Len()
	start := it.next
	if start >= n {
		return false
	}
	end := start + it.f.batchSize
	if end > n {
		if it.f.skipIncomplete {
			return false
		}
		end = n
	}

	batch := make([]*tensor.Dense, len(it.f.arrays))
	for i, a := range it.f.arrays {
		if batch[i], it.err = rows(a, start, end); it.err != nil {
			return false
		}
	}
	it.batch = batch
	it.next = end
	return true
}

func (it *arrayIterator) Batch() []*tensor.Dense { return it.batch }
func (it *arrayIterator) Err() error             { return it.err }
