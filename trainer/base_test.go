package trainer

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type nopVM struct{}

func (nopVM) RunAll() error { return nil }
func (nopVM) Reset()        {}
func (nopVM) Close() error  { return nil }

type fakeEpochs struct {
	n, epoch int
	closed   int
}

func (it *fakeEpochs) Next() bool {
	if it.epoch+1 >= it.n {
		return false
	}
	it.epoch++
	return true
}
func (it *fakeEpochs) Epoch() int { return it.epoch }
func (it *fakeEpochs) Err() error { return nil }
func (it *fakeEpochs) Close() error {
	it.closed++
	return nil
}

type fakeSteps struct {
	n, step int
}

func (it *fakeSteps) Next() bool {
	if it.step >= it.n {
		return false
	}
	it.step++
	return true
}
func (it *fakeSteps) Payload() interface{} { return it.step }
func (it *fakeSteps) Err() error           { return nil }

// fakeLoop runs a fixed number of epochs and steps, and records what happens.
type fakeLoop struct {
	epochs, steps int

	current  *fakeEpochs
	events   []string
	logged   []int
	summary  int
	stepErr  error
	payloads []interface{}
}

func (l *fakeLoop) IterEpochs() EpochIterator {
	l.current = &fakeEpochs{n: l.epochs, epoch: -1}
	return l.current
}
func (l *fakeLoop) PrintLogs()            { l.logged = append(l.logged, l.current.epoch) }
func (l *fakeLoop) PrintTrainingSummary() { l.summary++ }

func (l *fakeLoop) IterSteps() StepIterator { return &fakeSteps{n: l.steps} }
func (l *fakeLoop) RunStep(vm G.VM, payload interface{}) error {
	l.events = append(l.events, "step")
	l.payloads = append(l.payloads, payload)
	return l.stepErr
}

func newFakeTrainer(epochs, steps int) (*BaseTrainer, *fakeLoop) {
	l := &fakeLoop{epochs: epochs, steps: steps}
	return NewBase(l, l, nopVM{}, nil), l
}

func TestBaseTrainerRun(t *testing.T) {
	tr, l := newFakeTrainer(3, 2)

	var epochLog, stepLog []int
	_, err := tr.BeforeEpochs().AddHook(func() error {
		epochLog = append(epochLog, l.current.Epoch())
		return nil
	}, 1, DefaultPriority)
	require.NoError(t, err)
	_, err = tr.AfterSteps().AddHook(func() error {
		stepLog = append(stepLog, len(l.events))
		return nil
	}, 2, DefaultPriority)
	require.NoError(t, err)
	require.NoError(t, tr.LogAfterEpochs(1))

	require.NoError(t, tr.Run())
	assert.Equal(t, []int{0, 1, 2}, epochLog)
	assert.Equal(t, []int{2, 4, 6}, stepLog)
	assert.Equal(t, []int{0, 1, 2}, l.logged)
	assert.Equal(t, 6, len(l.events))
	assert.Equal(t, []interface{}{1, 2, 1, 2, 1, 2}, l.payloads)
	assert.Equal(t, 1, l.summary)
	assert.Equal(t, Idle, tr.State())
	assert.Equal(t, 1, l.current.closed)

	assert.Equal(t, 3, tr.BeforeEpochs().Counter())
	assert.Equal(t, 6, tr.BeforeSteps().Counter())

	// counters restart on every run
	require.NoError(t, tr.Run())
	assert.Len(t, stepLog, 6)
	assert.Equal(t, 3, tr.AfterEpochs().Counter())
}

func TestBaseTrainerHookOrder(t *testing.T) {
	tr, l := newFakeTrainer(1, 1)
	var r recorder
	must := func(err error) { require.NoError(t, err) }

	must(tr.LogAfter(Every{Steps: 1}))
	must(tr.AnnealAfterSteps(AnnealerFunc(func() { r.calls = append(r.calls, "anneal") }), 1))
	must(tr.EvaluateAfter(RunnerFunc(func() error {
		r.calls = append(r.calls, "eval")
		return nil
	}), Every{Steps: 1}))
	_, err := tr.BeforeSteps().AddHook(r.cb("before"), 1, DefaultPriority)
	must(err)

	must(tr.Run())
	assert.Equal(t, []string{"before", "eval", "anneal"}, r.calls)
	assert.Equal(t, []int{0}, l.logged)
	assert.Equal(t, LoggingPriority, tr.AfterSteps().Hooks()[2].Priority)
}

func TestBaseTrainerReentrancy(t *testing.T) {
	tr, _ := newFakeTrainer(2, 1)
	var inner error
	_, err := tr.BeforeSteps().AddHook(func() error {
		assert.Equal(t, Running, tr.State())
		inner = tr.Run()
		return nil
	}, 1, DefaultPriority)
	require.NoError(t, err)

	require.NoError(t, tr.Run())
	assert.Equal(t, ErrReentrant, errors.Cause(inner))
	assert.Equal(t, Idle, tr.State())
}

func TestBaseTrainerErrors(t *testing.T) {
	tr, l := newFakeTrainer(3, 2)
	boom := errors.New("boom")
	l.stepErr = boom
	assert.Equal(t, boom, tr.Run(), "step errors are returned as is")
	assert.Equal(t, Idle, tr.State())
	assert.Equal(t, []string{"step"}, l.events)
	assert.Equal(t, 1, l.current.closed, "the epoch iterator is closed on errors")

	tr, _ = newFakeTrainer(3, 2)
	_, err := tr.AfterEpochs().AddHook(func() error { return boom }, 1, DefaultPriority)
	require.NoError(t, err)
	assert.Equal(t, boom, tr.Run(), "hook errors are returned as is")
	assert.Equal(t, Idle, tr.State())

	tr, _ = newFakeTrainer(1, 1)
	_, err = tr.AfterSteps().AddHook(func() error { panic("oops") }, 1, DefaultPriority)
	require.NoError(t, err)
	assert.Panics(t, func() { tr.Run() })
	assert.Equal(t, Idle, tr.State(), "the state is restored after a panic")
}

func TestBaseTrainerPreconditions(t *testing.T) {
	l := &fakeLoop{epochs: 1, steps: 1}
	tr := NewBase(l, l, nil, nil)
	assert.Equal(t, ErrPrecondition, errors.Cause(tr.Run()))
	assert.Equal(t, 0, l.summary)

	g := G.NewGraph()
	w := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2), G.WithName("w"))
	tr = NewBase(l, l, nopVM{}, G.Nodes{w})
	err := tr.Run()
	assert.Equal(t, ErrPrecondition, errors.Cause(err))
	assert.Contains(t, err.Error(), "w")

	tr = NewBase(nil, l, nopVM{}, nil)
	assert.Equal(t, ErrPrecondition, errors.Cause(tr.Run()))
	assert.Equal(t, Idle, tr.State())
}

func TestEvery(t *testing.T) {
	tr, _ := newFakeTrainer(1, 1)
	noop := AnnealerFunc(func() {})

	err := tr.AnnealAfter(noop, Every{})
	assert.Equal(t, ErrConfiguration, errors.Cause(err))
	err = tr.AnnealAfter(noop, Every{Epochs: 1, Steps: 1})
	assert.Equal(t, ErrConfiguration, errors.Cause(err))
	assert.Equal(t, ErrConfiguration, errors.Cause(tr.AnnealAfterEpochs(nil, 1)))
	assert.Equal(t, ErrConfiguration, errors.Cause(tr.EvaluateAfterSteps(nil, 1)))

	require.NoError(t, tr.AnnealAfter(noop, Every{Epochs: 2}))
	require.NoError(t, tr.AnnealAfter(noop, Every{Steps: 3}))
	assert.Equal(t, 1, tr.AfterEpochs().Len())
	assert.Equal(t, 1, tr.AfterSteps().Len())
	assert.Equal(t, 2, tr.AfterEpochs().Hooks()[0].Freq)
}

func TestRemoveHooks(t *testing.T) {
	tr, _ := newFakeTrainer(1, 1)
	ev := RunnerFunc(func() error { return nil })
	require.NoError(t, tr.LogAfterSteps(1))
	require.NoError(t, tr.LogAfterEpochs(1))
	require.NoError(t, tr.EvaluateAfterEpochs(ev, 1))
	require.NoError(t, tr.EvaluateAfterSteps(ev, 5))
	require.NoError(t, tr.AnnealAfterEpochs(AnnealerFunc(func() {}), 1))

	assert.Equal(t, 2, tr.RemoveLogHooks())
	assert.Equal(t, 0, tr.RemoveLogHooks())
	assert.Equal(t, 2, tr.RemoveEvaluationHooks())
	n, err := tr.RemoveByPriority(AnnealingPriority)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, tr.RemoveAnnealingHooks())

	for _, l := range tr.HookLists() {
		assert.Equal(t, 0, l.Len())
	}
}

func TestToDot(t *testing.T) {
	tr, _ := newFakeTrainer(1, 1)
	require.NoError(t, tr.LogAfterEpochs(1))
	require.NoError(t, tr.EvaluateAfterEpochs(RunnerFunc(func() error { return nil }), 2))

	dot := tr.ToDot()
	for _, want := range []string{"BeforeEpochs", "RunStep", "AfterEpochs_0", "AfterEpochs_1", "Evaluation every 2", "Logging every 1"} {
		assert.True(t, strings.Contains(dot, want), "missing %q in\n%s", want, dot)
	}
}
