package snippet

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func asDense(v G.Value) (*tensor.Dense, error) {
	switch t := v.(type) {
	case nil:
		return nil, errors.New("no value")
	case *tensor.Dense:
		return t, nil
	case G.Scalar:
		return tensor.New(tensor.FromScalar(t.Data())), nil
	}
	return nil, errors.Errorf("unsupported value type %T", v)
}

func fromDense(d *tensor.Dense) (G.Value, error) {
	if !d.IsScalar() {
		return d, nil
	}
	switch s := d.Data().(type) {
	case float32:
		v := G.F32(s)
		return &v, nil
	case float64:
		v := G.F64(s)
		return &v, nil
	}
	return nil, errors.Errorf("unsupported scalar of %v", d.Dtype())
}

// EncodeParams writes the values of params, in order.
func EncodeParams(w io.Writer, params G.Nodes) error {
	enc := gob.NewEncoder(w)
	for _, n := range params {
		v, err := asDense(n.Value())
		if err != nil {
			return errors.WithMessagef(err, "%v", n.Name())
		}
		if err = enc.Encode(v); err != nil {
			return errors.Wrapf(err, "unable to encode %v", n.Name())
		}
	}
	return nil
}

// DecodeParams reads values written by EncodeParams into params, which must
// be the same nodes in the same order.
func DecodeParams(r io.Reader, params G.Nodes) error {
	dec := gob.NewDecoder(r)
	for _, n := range params {
		d := new(tensor.Dense)
		if err := dec.Decode(d); err != nil {
			return errors.Wrapf(err, "unable to decode %v", n.Name())
		}
		if !d.Shape().Eq(n.Shape()) {
			return errors.Errorf("%v expects shape %v, got %v", n.Name(), n.Shape(), d.Shape())
		}
		v, err := fromDense(d)
		if err != nil {
			return errors.WithMessagef(err, "%v", n.Name())
		}
		if err = G.Let(n, v); err != nil {
			return errors.Wrapf(err, "unable to restore %v", n.Name())
		}
	}
	return nil
}

// create opens filename for writing. It is swapped in tests.
var create = func(filename string) (io.WriteCloser, error) {
	return os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
}

// SaveParams writes the values of params into filename.
func SaveParams(filename string, params G.Nodes) (err error) {
	f, err := create(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = errors.WithStack(cerr)
		}
	}()
	return EncodeParams(f, params)
}

// LoadParams restores the values of params saved by SaveParams.
func LoadParams(filename string, params G.Nodes) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return DecodeParams(f, params)
}
