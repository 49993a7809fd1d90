package trainer

import (
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/gorgonia/snippet/dataflow"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MetricCollector receives the metrics of a step or an evaluation.
type MetricCollector interface {
	CollectMetrics(metrics map[string]float64)
}

// TrainLoop is a Loop which also iterates the steps of an epoch over a data
// flow and collects metrics.
type TrainLoop interface {
	Loop
	MetricCollector
	IterSteps(flow dataflow.Flow) StepIterator
}

// Metric is a named scalar node whose value is reported after each step.
type Metric struct {
	Name string
	Node *G.Node
}

// Feed binds a scalar input node to a dynamic value before each step.
type Feed struct {
	Node  *G.Node
	Value DynamicValue
}

// LossOption configures a LossTrainer.
type LossOption func(*LossTrainer)

// WithLearningRate sets the learning rate. It is read before every step, so
// an AnnealingDynamicValue registered with AnnealAfter takes effect at once.
func WithLearningRate(lr DynamicValue) LossOption {
	return func(t *LossTrainer) { t.lr = lr }
}

// WithSolver sets the constructor of the solver. A solver is built for every
// step at the current learning rate.
func WithSolver(fn func(lr float64) G.Solver) LossOption {
	return func(t *LossTrainer) { t.newSolver = fn }
}

// WithFeeds binds scalar input nodes to dynamic values.
func WithFeeds(feeds ...Feed) LossOption {
	return func(t *LossTrainer) { t.feeds = append(t.feeds, feeds...) }
}

// WithMetrics reports extra metrics besides "loss".
func WithMetrics(metrics ...Metric) LossOption {
	return func(t *LossTrainer) { t.metrics = append(t.metrics, metrics...) }
}

// WithFiniteCheck makes a step fail with ErrNonFinite when a metric is NaN or
// infinite.
func WithFiniteCheck() LossOption {
	return func(t *LossTrainer) { t.checkFinite = true }
}

// WithBaseOptions passes options to the embedded BaseTrainer.
func WithBaseOptions(opts ...Option) LossOption {
	return func(t *LossTrainer) { t.baseOpts = append(t.baseOpts, opts...) }
}

// LossTrainer trains params by minimizing a scalar cost over the mini-batches
// of a data flow.
type LossTrainer struct {
	*BaseTrainer

	loop   TrainLoop
	flow   dataflow.Flow
	cost   *G.Node
	params G.Nodes
	inputs G.Nodes

	lr          DynamicValue
	newSolver   func(lr float64) G.Solver
	feeds       []Feed
	metrics     []Metric
	values      []G.Value
	checkFinite bool
	baseOpts    []Option

	vm G.VM
}

func vanillaSolver(lr float64) G.Solver {
	return G.NewVanillaSolver(G.WithLearnRate(lr))
}

// NewLossTrainer adds the gradients of cost with regards to params to the
// graph, compiles it, and returns a trainer whose steps feed the arrays of
// each mini-batch of flow into inputs, in order.
func NewLossTrainer(loop TrainLoop, flow dataflow.Flow, cost *G.Node, params, inputs G.Nodes, opts ...LossOption) (*LossTrainer, error) {
	if cost == nil || !cost.IsScalar() {
		return nil, errors.Wrap(ErrConfiguration, "cost must be a scalar node")
	}
	if len(params) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "no parameters to train")
	}

	retVal := &LossTrainer{
		loop:      loop,
		flow:      flow,
		cost:      cost,
		params:    params,
		inputs:    inputs,
		lr:        NewSimpleDynamicValue(0.1),
		newSolver: vanillaSolver,
	}
	for _, opt := range opts {
		opt(retVal)
	}
	for _, f := range retVal.feeds {
		if f.Node == nil || f.Value == nil {
			return nil, errors.Wrap(ErrConfiguration, "feeds need a node and a value")
		}
	}

	retVal.metrics = append([]Metric{{Name: "loss", Node: cost}}, retVal.metrics...)
	retVal.values = make([]G.Value, len(retVal.metrics))
	for i, m := range retVal.metrics {
		if m.Node == nil {
			return nil, errors.Wrapf(ErrConfiguration, "metric %q has no node", m.Name)
		}
		G.Read(m.Node, &retVal.values[i])
	}

	if _, err := G.Grad(cost, params...); err != nil {
		return nil, errors.Wrap(err, "unable to differentiate cost")
	}
	retVal.vm = G.NewTapeMachine(cost.Graph(), G.BindDualValues(params...))
	retVal.BaseTrainer = NewBase(loop, retVal, retVal.vm, params, retVal.baseOpts...)
	return retVal, nil
}

// IterSteps implements Strategy.
func (t *LossTrainer) IterSteps() StepIterator { return t.loop.IterSteps(t.flow) }

// RunStep implements Strategy. payload is a []*tensor.Dense mini-batch.
func (t *LossTrainer) RunStep(vm G.VM, payload interface{}) error {
	batch, ok := payload.([]*tensor.Dense)
	if !ok {
		return errors.Errorf("expected a []*tensor.Dense payload, got %T", payload)
	}
	if err := let(t.inputs, batch, t.feeds); err != nil {
		return err
	}
	// the tape machine resumes from where it stopped unless reset
	defer vm.Reset()
	if err := vm.RunAll(); err != nil {
		return errors.WithStack(err)
	}
	solver := t.newSolver(t.lr.Get())
	if err := solver.Step(G.NodesToValueGrads(t.params)); err != nil {
		return errors.Wrap(err, "solver step")
	}
	metrics, err := readMetrics(t.metrics, t.values, t.checkFinite)
	if err != nil {
		return err
	}
	t.loop.CollectMetrics(metrics)
	return nil
}

// LearningRate returns the current learning rate.
func (t *LossTrainer) LearningRate() float64 { return t.lr.Get() }

// Close releases the VM, and closes the loop if it is an io.Closer.
func (t *LossTrainer) Close() error {
	var errs manyErr
	if err := t.vm.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := t.loop.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func let(inputs G.Nodes, batch []*tensor.Dense, feeds []Feed) error {
	if len(batch) != len(inputs) {
		return errors.Errorf("batch has %d arrays but there are %d inputs", len(batch), len(inputs))
	}
	for i, n := range inputs {
		if err := G.Let(n, batch[i]); err != nil {
			return errors.Wrapf(err, "unable to feed %v", n.Name())
		}
	}
	for _, f := range feeds {
		v, err := scalarValue(f.Node.Dtype(), f.Value.Get())
		if err != nil {
			return err
		}
		if err = G.Let(f.Node, v); err != nil {
			return errors.Wrapf(err, "unable to feed %v", f.Node.Name())
		}
	}
	return nil
}

func scalarValue(dt tensor.Dtype, v float64) (G.Value, error) {
	switch dt {
	case G.Float32:
		f := G.F32(v)
		return &f, nil
	case G.Float64:
		f := G.F64(v)
		return &f, nil
	}
	return nil, errors.Errorf("cannot feed a float into a node of %v", dt)
}

func readMetrics(metrics []Metric, values []G.Value, checkFinite bool) (map[string]float64, error) {
	retVal := make(map[string]float64, len(metrics))
	for i, m := range metrics {
		v, finite, err := scalarOf(values[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "metric %q", m.Name)
		}
		if checkFinite && !finite {
			return nil, errors.Wrapf(ErrNonFinite, "%s = %v", m.Name, v)
		}
		retVal[m.Name] = v
	}
	return retVal, nil
}

func scalarOf(v G.Value) (retVal float64, finite bool, err error) {
	if v == nil {
		return 0, false, errors.New("value was not computed")
	}
	switch d := v.Data().(type) {
	case float32:
		return float64(d), !math32.IsNaN(d) && !math32.IsInf(d, 0), nil
	case float64:
		return d, !math.IsNaN(d) && !math.IsInf(d, 0), nil
	case []float32:
		if len(d) == 1 {
			return float64(d[0]), !math32.IsNaN(d[0]) && !math32.IsInf(d[0], 0), nil
		}
	case []float64:
		if len(d) == 1 {
			return d[0], !math.IsNaN(d[0]) && !math.IsInf(d[0], 0), nil
		}
	}
	return 0, false, errors.Errorf("value of shape %v is not a scalar", v.Shape())
}
