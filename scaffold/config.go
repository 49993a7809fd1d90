package scaffold

import "log"

// Config configures a TrainLoop.
type Config struct {
	MaxEpoch int // 0 means no limit on epochs
	MaxStep  int // 0 means no limit on steps

	// ValidMetricName is the metric tracked for the best result so far.
	// ValidMetricBigger tells whether bigger values are better.
	ValidMetricName   string
	ValidMetricBigger bool

	// EarlyStopping keeps a copy of the parameters at the best value of the
	// valid metric, and restores it on Close.
	EarlyStopping bool

	Logger *log.Logger
}

// DefaultConfig trains for maxEpoch epochs and tracks "valid_loss".
func DefaultConfig(maxEpoch int) Config {
	return Config{
		MaxEpoch:        maxEpoch,
		ValidMetricName: "valid_loss",
	}
}

// IsValid reports whether the configuration describes a finite loop.
func (conf Config) IsValid() bool {
	return conf.MaxEpoch >= 0 &&
		conf.MaxStep >= 0 &&
		(conf.MaxEpoch > 0 || conf.MaxStep > 0) &&
		(!conf.EarlyStopping || conf.ValidMetricName != "")
}
