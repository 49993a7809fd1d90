package trainer

// DynamicValue is a scalar that may change during training, such as a
// learning rate.
type DynamicValue interface {
	Get() float64
}

// SimpleDynamicValue is a DynamicValue that is changed by hand.
type SimpleDynamicValue struct {
	value float64
}

// NewSimpleDynamicValue creates a SimpleDynamicValue holding v.
func NewSimpleDynamicValue(v float64) *SimpleDynamicValue {
	return &SimpleDynamicValue{value: v}
}

func (v *SimpleDynamicValue) Get() float64 { return v.value }

// Set replaces the value.
func (v *SimpleDynamicValue) Set(value float64) { v.value = value }

// AnnealingDynamicValue decays geometrically: every Anneal multiplies the
// value by a fixed ratio. There is no lower bound.
//
// AnnealingDynamicValue is not goroutine-safe.
type AnnealingDynamicValue struct {
	value float64
	ratio float64
}

// NewAnnealingDynamicValue creates an AnnealingDynamicValue starting at
// initial and multiplied by ratio on every Anneal.
func NewAnnealingDynamicValue(initial, ratio float64) *AnnealingDynamicValue {
	return &AnnealingDynamicValue{value: initial, ratio: ratio}
}

func (v *AnnealingDynamicValue) Get() float64 { return v.value }

// Ratio returns the anneal multiplier.
func (v *AnnealingDynamicValue) Ratio() float64 { return v.ratio }

// Anneal multiplies the value by the ratio in place.
func (v *AnnealingDynamicValue) Anneal() { v.value *= v.ratio }

// Set replaces the value without changing the ratio.
func (v *AnnealingDynamicValue) Set(value float64) { v.value = value }

// Annealer is anything that can be annealed on a schedule.
type Annealer interface {
	Anneal()
}

// AnnealerFunc adapts a function to an Annealer.
type AnnealerFunc func()

func (f AnnealerFunc) Anneal() { f() }

// Runner is anything that can be run on a schedule, such as an Evaluator.
type Runner interface {
	Run() error
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func() error

func (f RunnerFunc) Run() error { return f() }
