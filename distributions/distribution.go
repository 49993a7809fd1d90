// Package distributions defines the probability distribution abstraction used
// by variational inference models built on Gorgonia.
//
// A Distribution receives its parameters as graph nodes. The shape of a
// parameter decomposes into batch shape + parameter shape. For example a 5
// class categorical distribution with probabilities of shape (3, 4, 5) has a
// batch shape of (3, 4).
//
// Drawing n samples yields a node of shape [n] + batch shape + value shape,
// where the value shape is the shape of one individual sample (() for the
// categorical above). The probability of samples shaped
// sample shape + batch shape + value shape has shape sample shape + batch
// shape, unless some of the trailing dimensions are grouped as one event with
// group ndims, in which case those dimensions are summed out of the log
// probability.
package distributions

import (
	"github.com/gorgonia/snippet/shape"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrNotReparameterized is returned when reparameterized samples are
// requested from a distribution which cannot provide them.
var ErrNotReparameterized = errors.New("distribution is not re-parameterized")

// Distribution is a probability distribution over graph nodes.
type Distribution interface {
	// Dtype is the data type of the samples.
	Dtype() tensor.Dtype

	// IsContinuous reports whether the distribution is continuous.
	IsContinuous() bool

	// IsReparameterized reports whether gradients can be propagated back
	// along the samples.
	IsReparameterized() bool

	// ValueShape is the shape of an individual sample.
	ValueShape() tensor.Shape

	// BatchShape is the shape of the batch of distributions.
	BatchShape() tensor.Shape

	// Sample builds the nodes that draw samples from the distribution.
	Sample(opts ...SampleOption) (*StochasticTensor, error)

	// LogProb builds the log densities of given. The last groupNdims
	// dimensions of the result are summed.
	LogProb(given *G.Node, groupNdims int) (*G.Node, error)

	// Prob builds the densities of given. The last groupNdims dimensions of
	// the log densities are summed before exponentiation.
	Prob(given *G.Node, groupNdims int) (*G.Node, error)
}

// SampleShape returns the shape of n samples drawn from d. If n is 0, the
// sample dimension is omitted.
func SampleShape(d Distribution, n int) tensor.Shape {
	if n <= 0 {
		return shape.Concat(d.BatchShape(), d.ValueShape())
	}
	return shape.Concat(tensor.Shape{n}, d.BatchShape(), d.ValueShape())
}

// ReduceGroupNdims sums the last groupNdims dimensions of x.
func ReduceGroupNdims(x *G.Node, groupNdims int) (*G.Node, error) {
	if groupNdims < 0 {
		return nil, errors.Errorf("group ndims must be non-negative, got %d", groupNdims)
	}
	if groupNdims == 0 {
		return x, nil
	}
	rank := shape.Rank(x)
	if groupNdims > rank {
		return nil, errors.Errorf("group ndims %d is larger than the rank %d of %v", groupNdims, rank, x)
	}
	along := make([]int, groupNdims)
	for i := range along {
		along[i] = rank - groupNdims + i
	}
	retVal, err := G.Sum(x, along...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}

// ProbFromLogProb is a helper for implementations: it exponentiates the
// result of LogProb.
func ProbFromLogProb(d Distribution, given *G.Node, groupNdims int) (*G.Node, error) {
	lp, err := d.LogProb(given, groupNdims)
	if err != nil {
		return nil, err
	}
	retVal, err := G.Exp(lp)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}
