package trainer

import (
	"fmt"

	"github.com/pkg/errors"
)

// Priority orders the hooks of a HookList. Smaller priorities run first.
//
// When several hooks fire on the same trigger, evaluation runs first, then
// hooks of the default priority, then annealing, and logging runs last so
// that a log line reports the metrics of the evaluation which just ran.
type Priority int

const (
	EvaluationPriority Priority = 500
	DefaultPriority    Priority = 1000
	AnnealingPriority  Priority = 1500
	LoggingPriority    Priority = 10000
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case EvaluationPriority, DefaultPriority, AnnealingPriority, LoggingPriority:
		return true
	}
	return false
}

func (p Priority) String() string {
	switch p {
	case EvaluationPriority:
		return "Evaluation"
	case DefaultPriority:
		return "Default"
	case AnnealingPriority:
		return "Annealing"
	case LoggingPriority:
		return "Logging"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Callback is the action of a hook.
type Callback func() error

// HookID identifies a registered hook within its HookList.
type HookID int

// Hook is a registered callback. It is immutable once registered.
type Hook struct {
	ID       HookID
	Callback Callback
	Freq     int
	Priority Priority
}

// HookList is an ordered list of hooks sharing one trigger counter.
//
// HookList is NOT goroutine-safe. It is owned by a single training loop.
type HookList struct {
	hooks   []Hook
	counter int
	nextID  HookID
}

// NewHookList creates an empty HookList.
func NewHookList() *HookList { return &HookList{} }

// AddHook registers cb to run on every freq-th call of CallHooks.
//
// Hooks run in ascending priority. Hooks of equal priority run in the order
// they were added.
func (l *HookList) AddHook(cb Callback, freq int, priority Priority) (HookID, error) {
	if cb == nil {
		return 0, errors.Wrap(ErrConfiguration, "nil callback")
	}
	if freq < 1 {
		return 0, errors.Wrapf(ErrConfiguration, "freq must be at least 1, got %d", freq)
	}
	if !priority.IsValid() {
		return 0, errors.Wrapf(ErrConfiguration, "unsupported priority %v", priority)
	}

	l.nextID++
	h := Hook{
		ID:       l.nextID,
		Callback: cb,
		Freq:     freq,
		Priority: priority,
	}

	// insert after every hook with priority <= the new one
	i := len(l.hooks)
	for i > 0 && l.hooks[i-1].Priority > priority {
		i--
	}
	l.hooks = append(l.hooks, Hook{})
	copy(l.hooks[i+1:], l.hooks[i:])
	l.hooks[i] = h
	return h.ID, nil
}

// CallHooks increments the trigger counter and runs every hook that is due.
// The first error aborts the call and is returned.
func (l *HookList) CallHooks() error {
	l.counter++
	for _, h := range l.hooks {
		if l.counter%h.Freq != 0 {
			continue
		}
		if err := h.Callback(); err != nil {
			return err
		}
	}
	return nil
}

// Reset zeroes the trigger counter.
func (l *HookList) Reset() { l.counter = 0 }

// Counter returns the number of CallHooks calls since the last Reset.
func (l *HookList) Counter() int { return l.counter }

// Len returns the number of registered hooks.
func (l *HookList) Len() int { return len(l.hooks) }

// Hooks returns a snapshot of the registered hooks in calling order.
func (l *HookList) Hooks() []Hook {
	retVal := make([]Hook, len(l.hooks))
	copy(retVal, l.hooks)
	return retVal
}

// Remove removes the hook with the given id. It reports whether the hook was
// found.
func (l *HookList) Remove(id HookID) bool {
	return l.RemoveIf(func(h Hook) bool { return h.ID == id }) > 0
}

// RemoveIf removes every hook for which cond is true, returning the count.
func (l *HookList) RemoveIf(cond func(Hook) bool) int {
	kept := l.hooks[:0]
	for _, h := range l.hooks {
		if !cond(h) {
			kept = append(kept, h)
		}
	}
	removed := len(l.hooks) - len(kept)
	for i := len(kept); i < len(l.hooks); i++ {
		l.hooks[i] = Hook{}
	}
	l.hooks = kept
	return removed
}

// RemoveByPriority removes every hook with exactly the given priority and
// returns how many were removed.
func (l *HookList) RemoveByPriority(priority Priority) (int, error) {
	if !priority.IsValid() {
		return 0, errors.Wrapf(ErrConfiguration, "unsupported priority %v", priority)
	}
	return l.RemoveIf(func(h Hook) bool { return h.Priority == priority }), nil
}
