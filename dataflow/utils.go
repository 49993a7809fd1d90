package dataflow

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// rows returns the rows [start, end) of a as a new tensor sharing a's backing
// memory.
func rows(a *tensor.Dense, start, end int) (*tensor.Dense, error) {
	s := a.Shape().Clone()
	stride := 1
	for _, d := range s[1:] {
		stride *= d
	}
	s[0] = end - start
	lo, hi := start*stride, end*stride

	var backing interface{}
	switch data := a.Data().(type) {
	case []float32:
		backing = data[lo:hi]
	case []float64:
		backing = data[lo:hi]
	case []int:
		backing = data[lo:hi]
	default:
		return nil, errors.Errorf("cannot slice rows of %v with shape %v", a.Dtype(), a.Shape())
	}
	return tensor.New(tensor.WithShape(s...), tensor.WithBacking(backing)), nil
}

// shuffleRows applies the same random permutation to the rows of every array.
func shuffleRows(r *rand.Rand, arrays []*tensor.Dense) (err error) {
	shapes := make([]tensor.Shape, len(arrays))
	for i, a := range arrays {
		shapes[i] = a.Shape().Clone()
	}
	defer func() {
		for i, a := range arrays {
			if e := a.Reshape(shapes[i]...); e != nil && err == nil {
				err = errors.Wrapf(e, "restoring shape %v", shapes[i])
			}
		}
	}()

	swaps := make([]func(i, j int), len(arrays))
	for i, a := range arrays {
		if err = a.Reshape(as2D(a.Shape())...); err != nil {
			return errors.Wrapf(err, "shuffle failed - array %d", i)
		}
		if swaps[i], err = rowSwapper(a); err != nil {
			return errors.Wrapf(err, "shuffle failed - array %d", i)
		}
	}

	for i := 0; i < shapes[0][0]; i++ {
		j := r.Intn(i + 1)
		for _, swap := range swaps {
			swap(i, j)
		}
	}
	return nil
}

func rowSwapper(a *tensor.Dense) (func(i, j int), error) {
	cols := a.Shape()[1]
	switch a.Dtype() {
	case tensor.Float32:
		mat, err := native.MatrixF32(a)
		if err != nil {
			return nil, err
		}
		tmp := make([]float32, cols)
		return func(i, j int) {
			copy(tmp, mat[i])
			copy(mat[i], mat[j])
			copy(mat[j], tmp)
		}, nil
	case tensor.Float64:
		mat, err := native.MatrixF64(a)
		if err != nil {
			return nil, err
		}
		tmp := make([]float64, cols)
		return func(i, j int) {
			copy(tmp, mat[i])
			copy(mat[i], mat[j])
			copy(mat[j], tmp)
		}, nil
	case tensor.Int:
		mat, err := native.MatrixI(a)
		if err != nil {
			return nil, err
		}
		tmp := make([]int, cols)
		return func(i, j int) {
			copy(tmp, mat[i])
			copy(mat[i], mat[j])
			copy(mat[j], tmp)
		}, nil
	}
	return nil, errors.Errorf("cannot shuffle arrays of %v", a.Dtype())
}

func as2D(s tensor.Shape) tensor.Shape {
	retVal := tensor.BorrowInts(2)
	retVal[0] = s[0]
	retVal[1] = 1
	for i := 1; i < len(s); i++ {
		retVal[1] *= s[i]
	}
	return retVal
}
