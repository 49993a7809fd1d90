package scaffold

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorgonia/snippet/dataflow"
	"github.com/gorgonia/snippet/trainer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func makeFlow(t *testing.T, n, batchSize int) dataflow.Flow {
	xs := tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(make([]float32, n)))
	f, err := dataflow.Arrays([]*tensor.Dense{xs}, batchSize)
	require.NoError(t, err)
	return f
}

func quietConfig(maxEpoch, maxStep int) (Config, *bytes.Buffer) {
	var buf bytes.Buffer
	conf := DefaultConfig(maxEpoch)
	conf.MaxStep = maxStep
	conf.Logger = log.New(&buf, "", 0)
	return conf, &buf
}

func TestConfigIsValid(t *testing.T) {
	var configTests = []struct {
		conf  Config
		valid bool
	}{
		{DefaultConfig(10), true},
		{Config{MaxStep: 100}, true},
		{Config{}, false},
		{Config{MaxEpoch: -1, MaxStep: 10}, false},
		{Config{MaxEpoch: 1, EarlyStopping: true}, false},
		{Config{MaxEpoch: 1, EarlyStopping: true, ValidMetricName: "acc"}, true},
	}
	for i, c := range configTests {
		assert.Equal(t, c.valid, c.conf.IsValid(), "test %d: %+v", i, c.conf)
	}

	_, err := New(nil, Config{})
	assert.Error(t, err)
}

// run drives the loop the way a trainer does and returns the epochs seen.
func run(t *testing.T, l *TrainLoop, flow dataflow.Flow) []int {
	var epochs []int
	it := l.IterEpochs()
	for it.Next() {
		epochs = append(epochs, it.Epoch())
		steps := l.IterSteps(flow)
		for steps.Next() {
			batch, ok := steps.Payload().([]*tensor.Dense)
			require.True(t, ok)
			require.Len(t, batch, 1)
			l.CollectMetrics(map[string]float64{"loss": float64(l.Step())})
		}
		require.NoError(t, steps.Err())
	}
	require.NoError(t, it.Err())
	return epochs
}

func TestTrainLoopEpochBudget(t *testing.T) {
	conf, _ := quietConfig(3, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)

	epochs := run(t, l, makeFlow(t, 10, 4))
	assert.Equal(t, []int{0, 1, 2}, epochs)
	assert.Equal(t, 9, l.Step())
	assert.Equal(t, 2, l.Epoch())

	h := l.History()
	assert.Equal(t, []int{0, 1, 2}, h.Epochs)
	assert.Equal(t, []string{"loss"}, h.Names)
	if diff := cmp.Diff([]float64{2, 5, 8}, h.Values["loss"]); diff != "" {
		t.Errorf("loss history mismatch (-want +got):\n%s", diff)
	}

	// the budget is spent
	assert.Empty(t, run(t, l, makeFlow(t, 10, 4)))
}

func TestTrainLoopStepBudget(t *testing.T) {
	conf, _ := quietConfig(0, 5)
	l, err := New(nil, conf)
	require.NoError(t, err)

	epochs := run(t, l, makeFlow(t, 10, 4))
	assert.Equal(t, []int{0, 1}, epochs)
	assert.Equal(t, 5, l.Step())
}

func TestTrainLoopReentrancy(t *testing.T) {
	conf, _ := quietConfig(2, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)

	outer := l.IterEpochs()
	require.True(t, outer.Next())

	inner := l.IterEpochs()
	assert.False(t, inner.Next())
	assert.Equal(t, ErrNotReentrant, errors.Cause(inner.Err()))

	for outer.Next() {
	}
	assert.NoError(t, outer.Err())
}

func TestTrainLoopInterrupted(t *testing.T) {
	conf, _ := quietConfig(4, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)
	flow := makeFlow(t, 8, 4)

	it := l.IterEpochs()
	require.True(t, it.Next())
	steps := l.IterSteps(flow)
	require.True(t, steps.Next())
	l.CollectMetrics(map[string]float64{"loss": 1})
	closer, ok := it.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close())

	// the partial epoch is kept and the next iteration carries on
	assert.Equal(t, []int{0}, l.History().Epochs)
	assert.Equal(t, []int{1, 2, 3}, run(t, l, flow))
	assert.Equal(t, []int{0, 1, 2, 3}, l.History().Epochs)
}

func TestTrainLoopClosingRejectedIteration(t *testing.T) {
	conf, _ := quietConfig(2, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)

	outer := l.IterEpochs()
	require.True(t, outer.Next())
	inner := l.IterEpochs()
	require.NoError(t, inner.(io.Closer).Close())

	again := l.IterEpochs()
	assert.False(t, again.Next())
	assert.Equal(t, ErrNotReentrant, errors.Cause(again.Err()), "the outer iteration is still running")
}

type nopVM struct{}

func (nopVM) RunAll() error { return nil }
func (nopVM) Reset()        {}
func (nopVM) Close() error  { return nil }

type flowStrategy struct {
	l    *TrainLoop
	flow dataflow.Flow
}

func (s flowStrategy) IterSteps() trainer.StepIterator { return s.l.IterSteps(s.flow) }
func (s flowStrategy) RunStep(vm G.VM, payload interface{}) error {
	s.l.CollectMetrics(map[string]float64{"loss": float64(s.l.Step())})
	return nil
}

func TestTrainerRunAfterHookError(t *testing.T) {
	conf, _ := quietConfig(4, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)
	tr := trainer.NewBase(l, flowStrategy{l, makeFlow(t, 8, 4)}, nopVM{}, nil)

	boom := errors.New("boom")
	var failed bool
	var epochs []int
	_, err = tr.AfterEpochs().AddHook(func() error {
		epochs = append(epochs, l.Epoch())
		if !failed {
			failed = true
			return boom
		}
		return nil
	}, 1, trainer.DefaultPriority)
	require.NoError(t, err)

	assert.Equal(t, boom, tr.Run())
	assert.Equal(t, trainer.Idle, tr.State())

	require.NoError(t, tr.Run())
	assert.Equal(t, []int{0, 1, 2, 3}, epochs)
	assert.Equal(t, 8, l.Step())
	assert.Equal(t, []int{0, 1, 2, 3}, l.History().Epochs)
}

func TestPrintLogs(t *testing.T) {
	conf, buf := quietConfig(5, 0)
	l, err := New(nil, conf)
	require.NoError(t, err)
	require.True(t, l.IterEpochs().Next())

	l.CollectMetrics(map[string]float64{"loss": 1, "acc": 0.5})
	l.CollectMetrics(map[string]float64{"loss": 3})
	l.PrintLogs()
	out := buf.String()
	assert.Contains(t, out, "Epoch 1/5, Step 0")
	assert.Contains(t, out, "acc: 0.5; loss: 2 (±1)")

	buf.Reset()
	l.PrintLogs()
	assert.NotContains(t, buf.String(), "loss")
}

func TestPrintTrainingSummary(t *testing.T) {
	g := G.NewGraph()
	w := G.NewMatrix(g, tensor.Float32, G.WithShape(2, 3), G.WithName("w"), G.WithInit(G.Zeroes()))
	b := G.NewVector(g, tensor.Float32, G.WithShape(3), G.WithName("b"), G.WithInit(G.Zeroes()))

	conf, buf := quietConfig(1, 0)
	l, err := New(G.Nodes{w, b}, conf)
	require.NoError(t, err)
	l.PrintTrainingSummary()

	out := buf.String()
	assert.Contains(t, out, "Trainable Parameters (9 in total)")
	assert.Contains(t, out, "(6)")
	assert.Contains(t, out, "(3)")
}

func TestEarlyStopping(t *testing.T) {
	g := G.NewGraph()
	w := G.NewVector(g, tensor.Float64, G.WithShape(2), G.WithName("w"),
		G.WithValue(tensor.New(tensor.WithBacking([]float64{1, 2}))))

	conf, _ := quietConfig(3, 0)
	conf.EarlyStopping = true
	l, err := New(G.Nodes{w}, conf)
	require.NoError(t, err)

	l.CollectMetrics(map[string]float64{"valid_loss": 0.5})
	require.NoError(t, G.Let(w, tensor.New(tensor.WithBacking([]float64{3, 4}))))
	l.CollectMetrics(map[string]float64{"valid_loss": 0.7})
	require.NoError(t, G.Let(w, tensor.New(tensor.WithBacking([]float64{5, 6}))))

	best, ok := l.BestValidMetric()
	require.True(t, ok)
	assert.Equal(t, 0.5, best)

	require.NoError(t, l.Close())
	assert.Equal(t, []float64{1, 2}, w.Value().Data())
}

func TestBiggerIsBetter(t *testing.T) {
	conf, _ := quietConfig(3, 0)
	conf.ValidMetricName = "acc"
	conf.ValidMetricBigger = true
	l, err := New(nil, conf)
	require.NoError(t, err)

	for _, v := range []float64{0.2, 0.9, math.NaN(), 0.4} {
		l.CollectMetrics(map[string]float64{"acc": v})
	}
	best, ok := l.BestValidMetric()
	require.True(t, ok)
	assert.Equal(t, 0.9, best)
}

func TestHistoryDump(t *testing.T) {
	h := makeHistory()
	h.update(0, []string{"loss"}, map[string]float64{"loss": 1.5})
	h.update(1, []string{"loss", "valid_loss"}, map[string]float64{"loss": 1, "valid_loss": 2})

	v, ok := h.Last("valid_loss")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.True(t, math.IsNaN(h.Values["valid_loss"][0]))

	dir, err := os.MkdirTemp("", "history")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "history.csv")
	require.NoError(t, h.Dump(filename))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	want := [][]string{
		{"epoch", "loss", "valid_loss"},
		{"0", "1.500000", ""},
		{"1", "1.000000", "2.000000"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("history CSV mismatch (-want +got):\n%s", diff)
	}
}

type failingCloser struct {
	bytes.Buffer
	err error
}

func (f *failingCloser) Close() error { return f.err }

func TestHistoryDumpCloseError(t *testing.T) {
	h := makeHistory()
	h.update(0, []string{"loss"}, map[string]float64{"loss": 1.5})

	full := errors.New("no space left on device")
	file := &failingCloser{err: full}
	defer func(orig func(string) (io.WriteCloser, error)) { create = orig }(create)
	create = func(string) (io.WriteCloser, error) { return file, nil }

	assert.Equal(t, full, h.Dump("history.csv"))
	assert.Equal(t, "epoch,loss\n0,1.500000\n", file.String())
}
