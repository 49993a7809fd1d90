package distributions

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// StochasticTensor is a sample node together with the distribution it was
// drawn from. Its log probability is built at most once.
type StochasticTensor struct {
	*G.Node
	Distribution Distribution

	NSamples          int
	GroupNdims        int
	IsReparameterized bool

	logProb *G.Node
	prob    *G.Node
}

// NewStochasticTensor wraps the sample node n. conf is the resolved
// configuration returned by ParseSampleOptions.
func NewStochasticTensor(d Distribution, n *G.Node, conf SampleConfig) (*StochasticTensor, error) {
	if n == nil {
		return nil, errors.New("nil sample node")
	}
	expected := SampleShape(d, conf.NSamples)
	if !expected.Eq(n.Shape()) {
		return nil, errors.Errorf("sample shape mismatch: expected %v, got %v", expected, n.Shape())
	}
	return &StochasticTensor{
		Node:              n,
		Distribution:      d,
		NSamples:          conf.NSamples,
		GroupNdims:        conf.GroupNdims,
		IsReparameterized: conf.IsReparameterized(),
	}, nil
}

// LogProb returns the log density of the samples, grouped by GroupNdims.
func (s *StochasticTensor) LogProb() (*G.Node, error) {
	if s.logProb == nil {
		lp, err := s.Distribution.LogProb(s.Node, s.GroupNdims)
		if err != nil {
			return nil, errors.WithMessage(err, "log prob of stochastic tensor")
		}
		s.logProb = lp
	}
	return s.logProb, nil
}

// Prob returns the density of the samples, grouped by GroupNdims.
func (s *StochasticTensor) Prob() (*G.Node, error) {
	if s.prob == nil {
		lp, err := s.LogProb()
		if err != nil {
			return nil, err
		}
		if s.prob, err = G.Exp(lp); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return s.prob, nil
}
