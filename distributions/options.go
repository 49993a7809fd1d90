package distributions

import "github.com/pkg/errors"

// SampleOption configures a call to Distribution.Sample.
type SampleOption func(*SampleConfig)

// SampleConfig is the resolved form of a list of SampleOption.
type SampleConfig struct {
	NSamples   int // 0 means no sample dimension
	GroupNdims int

	// Reparameterized is nil when the caller expressed no preference.
	Reparameterized *bool
}

// WithSamples draws n independent samples, adding a leading sample dimension.
func WithSamples(n int) SampleOption {
	return func(c *SampleConfig) { c.NSamples = n }
}

// WithGroupNdims treats the last k dimensions of [n] + batch shape as one
// event when computing probabilities of the samples.
func WithGroupNdims(k int) SampleOption {
	return func(c *SampleConfig) { c.GroupNdims = k }
}

// WithReparameterization requests (true) or disables (false) the
// re-parameterization of samples.
func WithReparameterization(on bool) SampleOption {
	return func(c *SampleConfig) { c.Reparameterized = &on }
}

// ParseSampleOptions applies opts and resolves the re-parameterization flag
// against d. Implementations of Distribution call this at the top of Sample.
func ParseSampleOptions(d Distribution, opts ...SampleOption) (SampleConfig, error) {
	var c SampleConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.NSamples < 0 {
		return c, errors.Errorf("number of samples must be non-negative, got %d", c.NSamples)
	}
	if c.GroupNdims < 0 {
		return c, errors.Errorf("group ndims must be non-negative, got %d", c.GroupNdims)
	}

	reparam := d.IsReparameterized()
	if c.Reparameterized != nil {
		if *c.Reparameterized && !reparam {
			return c, errors.WithStack(ErrNotReparameterized)
		}
		reparam = *c.Reparameterized
	}
	c.Reparameterized = &reparam
	return c, nil
}

// IsReparameterized returns the resolved re-parameterization flag.
func (c SampleConfig) IsReparameterized() bool {
	return c.Reparameterized != nil && *c.Reparameterized
}
