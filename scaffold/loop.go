// Package scaffold provides the training loop which owns the epoch and step
// budget of a training run, collects metrics and prints training logs.
package scaffold

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorgonia/snippet/dataflow"
	"github.com/gorgonia/snippet/trainer"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/vecf32"
)

// ErrNotReentrant is reported when epochs are iterated while a previous
// iteration is still in progress.
var ErrNotReentrant = errors.New("scaffold: epochs are already being iterated")

// TrainLoop drives epochs and steps within a budget. It implements
// trainer.TrainLoop.
//
// TrainLoop is NOT goroutine-safe.
type TrainLoop struct {
	conf   Config
	params G.Nodes
	logger *log.Logger

	epoch     int // index of the current epoch, -1 before the first
	step      int // number of steps started
	iterating bool

	start      time.Time
	epochStart time.Time

	names        []string
	window       map[string][]float32 // since the last PrintLogs
	epochMetrics map[string][]float32 // since the start of the epoch
	history      History

	best       float64
	hasBest    bool
	bestParams []G.Value
}

// New creates a TrainLoop over the trainable params.
func New(params G.Nodes, conf Config) (*TrainLoop, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid train loop configuration %+v", conf)
	}
	logger := conf.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.Ltime)
	}
	return &TrainLoop{
		conf:         conf,
		params:       params,
		logger:       logger,
		epoch:        -1,
		window:       make(map[string][]float32),
		epochMetrics: make(map[string][]float32),
		history:      makeHistory(),
	}, nil
}

// Epoch returns the index of the current epoch, starting at 0.
func (l *TrainLoop) Epoch() int { return l.epoch }

// Step returns the number of steps started so far.
func (l *TrainLoop) Step() int { return l.step }

// Config returns the configuration of the loop.
func (l *TrainLoop) Config() Config { return l.conf }

// History returns the per-epoch metric means recorded so far.
func (l *TrainLoop) History() *History { return &l.history }

// BestValidMetric returns the best value of the valid metric seen so far.
func (l *TrainLoop) BestValidMetric() (float64, bool) { return l.best, l.hasBest }

func (l *TrainLoop) stepsExhausted() bool {
	return l.conf.MaxStep > 0 && l.step >= l.conf.MaxStep
}

func (l *TrainLoop) epochsExhausted() bool {
	return l.conf.MaxEpoch > 0 && l.epoch+1 >= l.conf.MaxEpoch
}

// IterEpochs returns the epochs left in the budget. Epochs continue from where
// the previous iteration stopped. An iteration ends when the budget runs out
// or when the iterator is closed.
func (l *TrainLoop) IterEpochs() trainer.EpochIterator {
	if l.iterating {
		return &epochIterator{l: l, err: errors.WithStack(ErrNotReentrant)}
	}
	l.iterating = true
	if l.start.IsZero() {
		l.start = time.Now()
	}
	return &epochIterator{l: l}
}

type epochIterator struct {
	l       *TrainLoop
	started bool
	done    bool
	err     error
}

func (it *epochIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	l := it.l
	if it.started {
		l.endEpoch()
	}
	it.started = true
	if l.epochsExhausted() || l.stepsExhausted() {
		it.done = true
		l.iterating = false
		return false
	}
	l.epoch++
	l.epochStart = time.Now()
	return true
}

func (it *epochIterator) Epoch() int { return it.l.epoch }
func (it *epochIterator) Err() error { return it.err }

// Close ends an interrupted iteration. The metrics of the partial epoch are
// kept in the history.
func (it *epochIterator) Close() error {
	if it.err != nil || it.done {
		return nil
	}
	it.done = true
	if it.started {
		it.l.endEpoch()
	}
	it.l.iterating = false
	return nil
}

func (l *TrainLoop) endEpoch() {
	means := make(map[string]float64, len(l.epochMetrics))
	for name, vals := range l.epochMetrics {
		if len(vals) > 0 {
			means[name], _ = meanStd(vals)
		}
	}
	l.history.update(l.epoch, l.names, means)
	l.epochMetrics = make(map[string][]float32)
}

// IterSteps returns the mini-batches of flow for the current epoch, stopping
// early if the step budget runs out. Each payload is a []*tensor.Dense.
func (l *TrainLoop) IterSteps(flow dataflow.Flow) trainer.StepIterator {
	it := &stepIterator{l: l}
	if flow == nil {
		it.err = errors.New("no data flow")
		return it
	}
	it.inner, it.err = flow.Iter()
	return it
}

type stepIterator struct {
	l     *TrainLoop
	inner dataflow.Iterator
	err   error
}

func (it *stepIterator) Next() bool {
	if it.err != nil || it.l.stepsExhausted() {
		return false
	}
	if !it.inner.Next() {
		it.err = it.inner.Err()
		return false
	}
	it.l.step++
	return true
}

func (it *stepIterator) Payload() interface{} { return it.inner.Batch() }
func (it *stepIterator) Err() error           { return it.err }

// CollectMetrics records metric values for the logs and the history. If the
// valid metric is among them, the best value is updated.
func (l *TrainLoop) CollectMetrics(metrics map[string]float64) {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := metrics[k]
		if _, ok := l.window[k]; !ok && !l.known(k) {
			l.names = append(l.names, k)
		}
		l.window[k] = append(l.window[k], float32(v))
		l.epochMetrics[k] = append(l.epochMetrics[k], float32(v))

		if k == l.conf.ValidMetricName {
			l.updateBest(v)
		}
	}
}

func (l *TrainLoop) known(name string) bool {
	for _, n := range l.names {
		if n == name {
			return true
		}
	}
	return false
}

func (l *TrainLoop) updateBest(v float64) {
	if math.IsNaN(v) {
		return
	}
	better := !l.hasBest || (l.conf.ValidMetricBigger && v > l.best) || (!l.conf.ValidMetricBigger && v < l.best)
	if !better {
		return
	}
	l.best = v
	l.hasBest = true
	if !l.conf.EarlyStopping {
		return
	}

	snapshot := make([]G.Value, len(l.params))
	for i, n := range l.params {
		cloned, err := G.CloneValue(n.Value())
		if err != nil {
			l.logger.Printf("Unable to keep the parameters of the best %s: %v", l.conf.ValidMetricName, err)
			return
		}
		snapshot[i] = cloned
	}
	l.bestParams = snapshot
}

// PrintLogs prints the metrics collected since the last call and clears them.
func (l *TrainLoop) PrintLogs() {
	var buf bytes.Buffer
	if l.conf.MaxEpoch > 0 {
		fmt.Fprintf(&buf, "Epoch %d/%d", l.epoch+1, l.conf.MaxEpoch)
	} else {
		fmt.Fprintf(&buf, "Epoch %d", l.epoch+1)
	}
	if l.conf.MaxStep > 0 {
		fmt.Fprintf(&buf, ", Step %d/%d", l.step, l.conf.MaxStep)
	} else {
		fmt.Fprintf(&buf, ", Step %d", l.step)
	}
	if !l.epochStart.IsZero() {
		fmt.Fprintf(&buf, ", epoch time %v", time.Since(l.epochStart).Round(time.Millisecond))
	}

	var parts []string
	for _, name := range l.names {
		vals := l.window[name]
		if len(vals) == 0 {
			continue
		}
		parts = append(parts, formatMetric(name, vals))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&buf, ": %s", strings.Join(parts, "; "))
	}
	l.logger.Print(buf.String())
	l.window = make(map[string][]float32)
}

func formatMetric(name string, vals []float32) string {
	mean, std := meanStd(vals)
	if len(vals) == 1 {
		return fmt.Sprintf("%s: %.6g", name, mean)
	}
	return fmt.Sprintf("%s: %.6g (±%.6g)", name, mean, std)
}

func meanStd(vals []float32) (mean, std float64) {
	n := float32(len(vals))
	m := vecf32.Sum(vals) / n
	dev := make([]float32, len(vals))
	copy(dev, vals)
	vecf32.Trans(dev, -m)
	vecf32.Mul(dev, dev)
	return float64(m), math.Sqrt(float64(vecf32.Sum(dev) / n))
}

// PrintTrainingSummary prints the trainable parameters and their sizes.
func (l *TrainLoop) PrintTrainingSummary() {
	params := make(G.Nodes, len(l.params))
	copy(params, l.params)
	sort.Slice(params, func(i, j int) bool { return params[i].Name() < params[j].Name() })

	var total int
	var buf bytes.Buffer
	for _, n := range params {
		size := n.Shape().TotalSize()
		if n.IsScalar() {
			size = 1
		}
		total += size
		fmt.Fprintf(&buf, "\n\t%-30s %v (%d)", n.Name(), n.Shape(), size)
	}
	l.logger.Printf("Trainable Parameters (%d in total)%s", total, buf.String())
}

// Close ends the loop. With early stopping, the parameters are restored to
// those of the best valid metric.
func (l *TrainLoop) Close() error {
	l.iterating = false
	if !l.start.IsZero() {
		l.logger.Printf("Trained %d epochs, %d steps in %v", l.epoch+1, l.step, time.Since(l.start).Round(time.Millisecond))
	}
	if !l.conf.EarlyStopping || l.bestParams == nil {
		return nil
	}
	for i, n := range l.params {
		if err := G.Let(n, l.bestParams[i]); err != nil {
			return errors.Wrapf(err, "restoring %v", n.Name())
		}
	}
	l.logger.Printf("Restored the parameters of the best %s: %.6g", l.conf.ValidMetricName, l.best)
	l.bestParams = nil
	return nil
}
