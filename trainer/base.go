// Package trainer assembles the steps of a training process and runs the main
// training loop.
//
// A trainer does not take control of training entirely. The caller derives
// the cost and parameters of the model on a Gorgonia graph, and the trainer
// drives epochs and steps, firing hooks (logging, evaluation, annealing) at
// the boundaries in between.
package trainer

import (
	"io"
	"log"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// EpochIterator produces epoch indices. It is finite and cannot be
// restarted. If it is also an io.Closer, it is closed when the trainer stops
// iterating, whether the epochs ran out or not.
type EpochIterator interface {
	Next() bool
	Epoch() int
	Err() error
}

// StepIterator produces the payloads of the steps of one epoch.
type StepIterator interface {
	Next() bool
	Payload() interface{}
	Err() error
}

// Loop is the training loop that owns the epoch/step budget.
type Loop interface {
	IterEpochs() EpochIterator
	PrintLogs()
	PrintTrainingSummary()
}

// Strategy defines what a step is and how to run it.
type Strategy interface {
	// IterSteps returns the step payloads of the current epoch.
	IterSteps() StepIterator

	// RunStep runs one step on vm.
	RunStep(vm G.VM, payload interface{}) error
}

// State is the state of a trainer.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	}
	return "UNKNOWN STATE"
}

// Option configures a BaseTrainer.
type Option func(*BaseTrainer)

// WithLogger sets the logger which reports the outcome of every Run.
func WithLogger(l *log.Logger) Option {
	return func(t *BaseTrainer) { t.logger = l }
}

// BaseTrainer drives the epoch/step loop of a Strategy and fires its four
// hook lists.
//
// BaseTrainer is NOT goroutine-safe.
type BaseTrainer struct {
	loop     Loop
	strategy Strategy
	vm       G.VM
	params   G.Nodes
	logger   *log.Logger

	beforeEpochs *HookList
	afterEpochs  *HookList
	beforeSteps  *HookList
	afterSteps   *HookList

	state State
}

// NewBase creates a BaseTrainer. vm is the execution context the steps run
// on, and params are the trainable nodes, all of which must hold a value by
// the time Run is called.
func NewBase(loop Loop, strategy Strategy, vm G.VM, params G.Nodes, opts ...Option) *BaseTrainer {
	retVal := &BaseTrainer{
		loop:     loop,
		strategy: strategy,
		vm:       vm,
		params:   params,
		logger:   log.New(io.Discard, "", log.Ltime),

		beforeEpochs: NewHookList(),
		afterEpochs:  NewHookList(),
		beforeSteps:  NewHookList(),
		afterSteps:   NewHookList(),
	}
	for _, opt := range opts {
		opt(retVal)
	}
	return retVal
}

// Loop returns the training loop.
func (t *BaseTrainer) Loop() Loop { return t.loop }

// State returns whether the trainer is running.
func (t *BaseTrainer) State() State { return t.state }

func (t *BaseTrainer) BeforeEpochs() *HookList { return t.beforeEpochs }
func (t *BaseTrainer) AfterEpochs() *HookList  { return t.afterEpochs }
func (t *BaseTrainer) BeforeSteps() *HookList  { return t.beforeSteps }
func (t *BaseTrainer) AfterSteps() *HookList   { return t.afterSteps }

// HookLists returns all the hook lists in the order
// before epochs, before steps, after steps, after epochs.
func (t *BaseTrainer) HookLists() []*HookList {
	return []*HookList{t.beforeEpochs, t.beforeSteps, t.afterSteps, t.afterEpochs}
}

// Run runs the training loop. It is not re-entrant. Errors from hooks and
// steps are returned as is, and the trainer is Idle again when Run returns,
// whatever the outcome.
func (t *BaseTrainer) Run() (err error) {
	if t.state == Running {
		return errors.WithStack(ErrReentrant)
	}
	t.state = Running
	defer func() {
		t.state = Idle
	}()

	if err = t.checkPreconditions(); err != nil {
		return err
	}
	t.loop.PrintTrainingSummary()
	for _, l := range t.HookLists() {
		l.Reset()
	}

	if err = t.run(); err != nil {
		t.logger.Printf("Training failed: %v", err)
		return err
	}
	t.logger.Printf("Training completed")
	return nil
}

func (t *BaseTrainer) run() (err error) {
	epochs := t.loop.IterEpochs()
	if c, ok := epochs.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}()
	}
	for epochs.Next() {
		if err := t.beforeEpochs.CallHooks(); err != nil {
			return err
		}

		steps := t.strategy.IterSteps()
		for steps.Next() {
			if err := t.beforeSteps.CallHooks(); err != nil {
				return err
			}
			if err := t.strategy.RunStep(t.vm, steps.Payload()); err != nil {
				return err
			}
			if err := t.afterSteps.CallHooks(); err != nil {
				return err
			}
		}
		if err := steps.Err(); err != nil {
			return err
		}

		if err := t.afterEpochs.CallHooks(); err != nil {
			return err
		}
	}
	return epochs.Err()
}

func (t *BaseTrainer) checkPreconditions() error {
	if t.loop == nil || t.strategy == nil {
		return errors.Wrap(ErrPrecondition, "trainer has no loop or no strategy")
	}
	if t.vm == nil {
		return errors.Wrap(ErrPrecondition, "no execution context")
	}
	for _, n := range t.params {
		if n.Value() == nil {
			return errors.Wrapf(ErrPrecondition, "%v is not initialized", n.Name())
		}
	}
	return nil
}

// Every is a hook cadence. Exactly one of Epochs and Steps must be set.
type Every struct {
	Epochs int
	Steps  int
}

func (e Every) check() error {
	if (e.Epochs != 0) == (e.Steps != 0) {
		return errors.Wrapf(ErrConfiguration, "one and only one of epochs and steps should be specified, got %+v", e)
	}
	return nil
}

func (t *BaseTrainer) add(l *HookList, cb Callback, freq int, p Priority) error {
	_, err := l.AddHook(cb, freq, p)
	return err
}

func (t *BaseTrainer) addEvery(cb Callback, every Every, p Priority) error {
	if err := every.check(); err != nil {
		return err
	}
	if every.Epochs != 0 {
		return t.add(t.afterEpochs, cb, every.Epochs, p)
	}
	return t.add(t.afterSteps, cb, every.Steps, p)
}

func (t *BaseTrainer) printLogs() error {
	t.loop.PrintLogs()
	return nil
}

// LogAfterSteps prints the loop's logs after every freq steps.
func (t *BaseTrainer) LogAfterSteps(freq int) error {
	return t.add(t.afterSteps, t.printLogs, freq, LoggingPriority)
}

// LogAfterEpochs prints the loop's logs after every freq epochs.
func (t *BaseTrainer) LogAfterEpochs(freq int) error {
	return t.add(t.afterEpochs, t.printLogs, freq, LoggingPriority)
}

// LogAfter prints the loop's logs at the given cadence.
func (t *BaseTrainer) LogAfter(every Every) error {
	return t.addEvery(t.printLogs, every, LoggingPriority)
}

// RemoveLogHooks removes the logging hooks from all lists.
func (t *BaseTrainer) RemoveLogHooks() int { return t.removeKnown(LoggingPriority) }

func runnerCallback(r Runner) (Callback, error) {
	if r == nil {
		return nil, errors.Wrap(ErrConfiguration, "nil evaluator")
	}
	return r.Run, nil
}

// EvaluateAfterSteps runs r after every freq steps.
func (t *BaseTrainer) EvaluateAfterSteps(r Runner, freq int) error {
	cb, err := runnerCallback(r)
	if err != nil {
		return err
	}
	return t.add(t.afterSteps, cb, freq, EvaluationPriority)
}

// EvaluateAfterEpochs runs r after every freq epochs.
func (t *BaseTrainer) EvaluateAfterEpochs(r Runner, freq int) error {
	cb, err := runnerCallback(r)
	if err != nil {
		return err
	}
	return t.add(t.afterEpochs, cb, freq, EvaluationPriority)
}

// EvaluateAfter runs r at the given cadence.
func (t *BaseTrainer) EvaluateAfter(r Runner, every Every) error {
	cb, err := runnerCallback(r)
	if err != nil {
		return err
	}
	return t.addEvery(cb, every, EvaluationPriority)
}

// RemoveEvaluationHooks removes the evaluation hooks from all lists.
func (t *BaseTrainer) RemoveEvaluationHooks() int { return t.removeKnown(EvaluationPriority) }

func annealerCallback(a Annealer) (Callback, error) {
	if a == nil {
		return nil, errors.Wrap(ErrConfiguration, "nil annealer")
	}
	return func() error {
		a.Anneal()
		return nil
	}, nil
}

// AnnealAfterSteps anneals a after every freq steps.
func (t *BaseTrainer) AnnealAfterSteps(a Annealer, freq int) error {
	cb, err := annealerCallback(a)
	if err != nil {
		return err
	}
	return t.add(t.afterSteps, cb, freq, AnnealingPriority)
}

// AnnealAfterEpochs anneals a after every freq epochs.
func (t *BaseTrainer) AnnealAfterEpochs(a Annealer, freq int) error {
	cb, err := annealerCallback(a)
	if err != nil {
		return err
	}
	return t.add(t.afterEpochs, cb, freq, AnnealingPriority)
}

// AnnealAfter anneals a at the given cadence.
func (t *BaseTrainer) AnnealAfter(a Annealer, every Every) error {
	cb, err := annealerCallback(a)
	if err != nil {
		return err
	}
	return t.addEvery(cb, every, AnnealingPriority)
}

// RemoveAnnealingHooks removes the annealing hooks from all lists.
func (t *BaseTrainer) RemoveAnnealingHooks() int { return t.removeKnown(AnnealingPriority) }

// RemoveByPriority removes the hooks with the given priority from all lists
// and returns how many were removed.
func (t *BaseTrainer) RemoveByPriority(p Priority) (int, error) {
	var retVal int
	for _, l := range t.HookLists() {
		n, err := l.RemoveByPriority(p)
		if err != nil {
			return retVal, err
		}
		retVal += n
	}
	return retVal, nil
}

func (t *BaseTrainer) removeKnown(p Priority) int {
	n, _ := t.RemoveByPriority(p)
	return n
}
