package distributions

import "github.com/pkg/errors"

// Params holds named distribution parameters, usually *G.Node or float64.
type Params map[string]interface{}

// Constructor builds a distribution from its parameters.
type Constructor func(p Params) (Distribution, error)

// Factory builds distributions of one family with some default parameters.
//
//	f := NewFactory(newNormal, Params{"std": 1.0})
//	n, err := f.New(Params{"mean": mean}) // std = 1
//	n, err = f.New(Params{"mean": mean, "std": std})
type Factory struct {
	ctor     Constructor
	defaults Params
}

// NewFactory creates a factory. defaults is copied.
func NewFactory(ctor Constructor, defaults Params) Factory {
	return Factory{
		ctor:     ctor,
		defaults: merge(nil, defaults),
	}
}

// Defaults returns a copy of the default parameters.
func (f Factory) Defaults() Params { return merge(nil, f.defaults) }

// New builds a distribution with the defaults overridden by overrides.
func (f Factory) New(overrides Params) (Distribution, error) {
	if f.ctor == nil {
		return nil, errors.New("factory has no constructor")
	}
	d, err := f.ctor(merge(f.defaults, overrides))
	if err != nil {
		return nil, errors.WithMessage(err, "factory")
	}
	return d, nil
}

func merge(a, b Params) Params {
	retVal := make(Params, len(a)+len(b))
	for k, v := range a {
		retVal[k] = v
	}
	for k, v := range b {
		retVal[k] = v
	}
	return retVal
}
