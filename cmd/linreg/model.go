package main

import (
	"github.com/gorgonia/snippet/shape"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the dtype of the model.
var Float = G.Float32

type maebe struct {
	err error
}

func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// flatten keeps the batch axis and flattens the features.
func (m *maebe) flatten(input *G.Node) *G.Node {
	if m.err != nil {
		return nil
	}
	batch, err := shape.BatchSize(input, 0)
	if err != nil {
		m.err = errors.WithStack(err)
		return nil
	}
	features := shape.Of(input)[1:].TotalSize()
	return m.do(func() (*G.Node, error) { return G.Reshape(input, tensor.Shape{batch, features}) })
}

func (m *maebe) linear(input *G.Node, units int, name string) (retVal, w, b *G.Node) {
	if m.err != nil {
		return nil, nil, nil
	}
	features, err := shape.DimensionsSize(input, -1)
	if err != nil {
		m.err = errors.WithStack(err)
		return nil, nil, nil
	}
	w = G.NewMatrix(input.Graph(), Float, G.WithShape(features[0], units), G.WithInit(G.GlorotN(1.0)), G.WithName(name+"_w"))
	b = G.NewMatrix(input.Graph(), Float, G.WithShape(1, units), G.WithInit(G.Zeroes()), G.WithName(name+"_b"))
	xw := m.do(func() (*G.Node, error) { return G.Mul(input, w) })
	retVal = m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, b, nil, []byte{0}) })
	return
}

func (m *maebe) mse(output, target *G.Node) *G.Node {
	diff := m.do(func() (*G.Node, error) { return G.Sub(output, target) })
	sq := m.do(func() (*G.Node, error) { return G.Square(diff) })
	return m.do(func() (*G.Node, error) { return G.Mean(sq) })
}

// model is a linear regression over grids of features.
type model struct {
	g    *G.ExprGraph
	x, y *G.Node
	w, b *G.Node
	pred *G.Node
	cost *G.Node
}

func newModel(conf Config) (*model, error) {
	g := G.NewGraph()
	retVal := &model{g: g}
	retVal.x = G.NewTensor(g, Float, 3, G.WithShape(conf.BatchSize, conf.Height, conf.Width), G.WithName("x"))
	retVal.y = G.NewMatrix(g, Float, G.WithShape(conf.BatchSize, 1), G.WithName("y"))

	m := new(maebe)
	flat := m.flatten(retVal.x)
	retVal.pred, retVal.w, retVal.b = m.linear(flat, 1, "out")
	retVal.cost = m.mse(retVal.pred, retVal.y)
	if m.err != nil {
		return nil, m.err
	}
	return retVal, nil
}

func (m *model) params() G.Nodes { return G.Nodes{m.w, m.b} }
func (m *model) inputs() G.Nodes { return G.Nodes{m.x, m.y} }

// shareParams makes the params of m point to the values of src.
func (m *model) shareParams(src *model) error {
	from := src.params()
	for i, n := range m.params() {
		if err := G.Let(n, from[i].Value()); err != nil {
			return errors.Wrapf(err, "unable to share %v", n.Name())
		}
	}
	return nil
}

// weights returns the learned weights and bias.
func (m *model) weights() (w []float32, b float32) {
	w = append(w, m.w.Value().Data().([]float32)...)
	b = m.b.Value().Data().([]float32)[0]
	return
}
