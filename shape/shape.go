// Package shape provides helpers for inspecting and rearranging the shapes of
// graph nodes.
//
// Gorgonia knows the shape of every node when the graph is built, so all the
// functions here are pure bookkeeping over tensor.Shape values, plus the
// reshape nodes needed to flatten and unflatten.
package shape

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// IntShape returns a copy of the shape of x.
func IntShape(x *G.Node) tensor.Shape {
	return x.Shape().Clone()
}

// Rank returns the number of dimensions of x.
func Rank(x *G.Node) int { return x.Shape().Dims() }

// ResolveNegativeAxis resolves every negative index in axis against ndims.
//
//	ResolveNegativeAxis(4, []int{0, -1, -2}) // [0 3 2]
func ResolveNegativeAxis(ndims int, axis []int) ([]int, error) {
	retVal := make([]int, len(axis))
	for i, a := range axis {
		if a < 0 {
			a += ndims
		}
		if a < 0 || a >= ndims {
			return nil, errors.Errorf("axis out of range: %v vs ndims %d", axis, ndims)
		}
		retVal[i] = a
	}
	return retVal, nil
}

// Flatten flattens the front dimensions of x so that the result has at most k
// dimensions. It returns the flattened node and the front shape needed by
// Unflatten. If x already has exactly k dimensions, x is returned as is with a
// nil front shape.
func Flatten(x *G.Node, k int) (*G.Node, tensor.Shape, error) {
	if k < 1 {
		return nil, nil, errors.Errorf("k must be greater or equal to 1, got %d", k)
	}
	s := IntShape(x)
	if s.Dims() < k {
		return nil, nil, errors.Errorf("k is %d, but x only has rank %d", k, s.Dims())
	}
	if s.Dims() == k {
		return x, nil, nil
	}

	var front, to tensor.Shape
	if k == 1 {
		front = s
		to = tensor.Shape{s.TotalSize()}
	} else {
		split := s.Dims() - (k - 1)
		front = s[:split].Clone()
		back := s[split:]
		to = Concat(tensor.Shape{front.TotalSize()}, back)
	}

	retVal, err := G.Reshape(x, to)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "flatten %v to %v", s, to)
	}
	return retVal, front, nil
}

// Unflatten is the inverse of Flatten. A nil front shape returns x unchanged.
func Unflatten(x *G.Node, front tensor.Shape) (*G.Node, error) {
	if front == nil {
		return x, nil
	}
	s := IntShape(x)
	if s.Dims() < 1 {
		return nil, errors.Errorf("x only has rank %d, required at least 1", s.Dims())
	}
	if front.TotalSize() != s[0] {
		return nil, errors.Errorf("front shape %v does not match the leading dimension of %v", front, s)
	}

	to := Concat(front, s[1:])
	retVal, err := G.Reshape(x, to)
	if err != nil {
		return nil, errors.Wrapf(err, "unflatten %v to %v", s, to)
	}
	return retVal, nil
}

// BatchSize returns the size of x along axis, which is usually 0. Negative
// axes count from the back.
func BatchSize(x *G.Node, axis int) (int, error) {
	s := x.Shape()
	resolved, err := ResolveNegativeAxis(s.Dims(), []int{axis})
	if err != nil {
		return 0, err
	}
	return s[resolved[0]], nil
}

// DimensionsSize returns the size of x along each of axis. If no axis is
// given, the sizes of all dimensions are returned.
func DimensionsSize(x *G.Node, axis ...int) (tensor.Shape, error) {
	s := IntShape(x)
	if axis == nil {
		return s, nil
	}
	resolved, err := ResolveNegativeAxis(s.Dims(), axis)
	if err != nil {
		return nil, err
	}
	retVal := make(tensor.Shape, len(resolved))
	for i, a := range resolved {
		retVal[i] = s[a]
	}
	return retVal, nil
}

// Of returns the sizes of all dimensions of x.
func Of(x *G.Node) tensor.Shape { return IntShape(x) }

// Concat joins shapes end to end.
func Concat(shapes ...tensor.Shape) tensor.Shape {
	var n int
	for _, s := range shapes {
		n += len(s)
	}
	retVal := make(tensor.Shape, 0, n)
	for _, s := range shapes {
		retVal = append(retVal, s...)
	}
	return retVal
}
