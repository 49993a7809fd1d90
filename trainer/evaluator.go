package trainer

import (
	"time"

	"github.com/gorgonia/snippet/dataflow"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	Inputs  G.Nodes  // fed from the arrays of each mini-batch, in order
	Metrics []Metric // averaged over the whole flow, weighted by batch size
	Feeds   []Feed

	// TimeMetricName, if set, reports the duration of a run in seconds.
	TimeMetricName string
}

// Evaluator computes metrics over a whole data flow with a forward pass. It
// implements Runner, so it can be scheduled with EvaluateAfter.
//
// The metric nodes usually live on a forward-only graph distinct from the
// training graph. Copying the trained parameters over is then a job for a
// BeforeRun hook.
type Evaluator struct {
	collector MetricCollector
	flow      dataflow.Flow
	conf      EvaluatorConfig

	values []G.Value
	vm     G.VM

	beforeRun *HookList
	afterRun  *HookList
	last      map[string]float64
}

// NewEvaluator compiles the graph of the metric nodes. The results of every
// Run are passed to collector, which is usually the training loop.
func NewEvaluator(collector MetricCollector, flow dataflow.Flow, conf EvaluatorConfig) (*Evaluator, error) {
	if len(conf.Metrics) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "no metrics to evaluate")
	}
	if flow == nil {
		return nil, errors.Wrap(ErrConfiguration, "no data flow to evaluate")
	}
	if conf.Metrics[0].Node == nil {
		return nil, errors.Wrapf(ErrConfiguration, "metric %q has no node", conf.Metrics[0].Name)
	}
	g := conf.Metrics[0].Node.Graph()

	retVal := &Evaluator{
		collector: collector,
		flow:      flow,
		conf:      conf,
		values:    make([]G.Value, len(conf.Metrics)),
		beforeRun: NewHookList(),
		afterRun:  NewHookList(),
	}
	for i, m := range conf.Metrics {
		if m.Node == nil || m.Node.Graph() != g {
			return nil, errors.Wrapf(ErrConfiguration, "metric %q is not on the evaluation graph", m.Name)
		}
		G.Read(m.Node, &retVal.values[i])
	}
	retVal.vm = G.NewTapeMachine(g)
	return retVal, nil
}

// BeforeRun returns the hooks called at the start of every Run.
func (e *Evaluator) BeforeRun() *HookList { return e.beforeRun }

// AfterRun returns the hooks called once the metrics of a Run are known.
func (e *Evaluator) AfterRun() *HookList { return e.afterRun }

// LastMetrics returns the metrics of the last successful Run.
func (e *Evaluator) LastMetrics() map[string]float64 {
	retVal := make(map[string]float64, len(e.last))
	for k, v := range e.last {
		retVal[k] = v
	}
	return retVal
}

// Run evaluates the metrics over the data flow.
func (e *Evaluator) Run() error {
	if err := e.beforeRun.CallHooks(); err != nil {
		return err
	}
	start := time.Now()

	it, err := e.flow.Iter()
	if err != nil {
		return errors.WithMessage(err, "evaluation")
	}
	sums := make([]float64, len(e.conf.Metrics))
	var total int
	for it.Next() {
		batch := it.Batch()
		if err = e.runBatch(batch, sums); err != nil {
			return err
		}
		total += batchSize(batch)
	}
	if err = it.Err(); err != nil {
		return err
	}
	if total == 0 {
		return errors.New("evaluation data flow is empty")
	}

	metrics := make(map[string]float64, len(sums)+1)
	for i, m := range e.conf.Metrics {
		metrics[m.Name] = sums[i] / float64(total)
	}
	if e.conf.TimeMetricName != "" {
		metrics[e.conf.TimeMetricName] = time.Since(start).Seconds()
	}
	e.last = metrics
	if e.collector != nil {
		e.collector.CollectMetrics(e.LastMetrics())
	}
	return e.afterRun.CallHooks()
}

// runBatch adds the metrics of batch, weighted by its size, to sums.
func (e *Evaluator) runBatch(batch []*tensor.Dense, sums []float64) error {
	if err := let(e.conf.Inputs, batch, e.conf.Feeds); err != nil {
		return err
	}
	defer e.vm.Reset()
	if err := e.vm.RunAll(); err != nil {
		return errors.WithStack(err)
	}
	size := float64(batchSize(batch))
	for i := range e.conf.Metrics {
		v, _, err := scalarOf(e.values[i])
		if err != nil {
			return errors.WithMessagef(err, "metric %q", e.conf.Metrics[i].Name)
		}
		sums[i] += v * size
	}
	return nil
}

func batchSize(batch []*tensor.Dense) int {
	if len(batch) > 0 && batch[0].Dims() > 0 {
		return batch[0].Shape()[0]
	}
	return 1
}

// Close releases the VM.
func (e *Evaluator) Close() error { return e.vm.Close() }
