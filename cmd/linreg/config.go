package main

// Config configures the linear regression experiment.
type Config struct {
	// each example is a Height×Width grid of features
	Height int `yaml:"height"`
	Width  int `yaml:"width"`

	TrainSize int     `yaml:"train_size"`
	TestSize  int     `yaml:"test_size"`
	Noise     float64 `yaml:"noise"` // std of the noise added to the targets
	Seed      int64   `yaml:"seed"`

	BatchSize      int     `yaml:"batch_size"`
	MaxEpoch       int     `yaml:"max_epoch"`
	InitialLR      float64 `yaml:"initial_lr"`
	LRAnnealFactor float64 `yaml:"lr_anneal_factor"`
	LRAnnealEpochs int     `yaml:"lr_anneal_epochs"`
	EvaluateEpochs int     `yaml:"evaluate_epochs"`

	ResultDir string `yaml:"result_dir"`
	GIFWidth  int    `yaml:"gif_width"`
	GIFRows   int    `yaml:"gif_rows"`
}

// DefaultConfig returns the configuration used by the linreg command.
func DefaultConfig() Config {
	return Config{
		Height: 2,
		Width:  2,

		TrainSize: 1024,
		TestSize:  256,
		Noise:     0.01,
		Seed:      1337,

		BatchSize:      32,
		MaxEpoch:       30,
		InitialLR:      0.1,
		LRAnnealFactor: 0.5,
		LRAnnealEpochs: 10,
		EvaluateEpochs: 5,

		ResultDir: "results",
		GIFWidth:  1200,
		GIFRows:   12,
	}
}

func (conf Config) IsValid() bool {
	return conf.Height > 0 && conf.Width > 0 &&
		conf.BatchSize >= 1 &&
		conf.TrainSize >= conf.BatchSize &&
		conf.TestSize >= conf.BatchSize &&
		conf.Noise >= 0 &&
		conf.MaxEpoch >= 1 &&
		conf.InitialLR > 0 &&
		conf.LRAnnealFactor > 0 && conf.LRAnnealFactor <= 1 &&
		conf.LRAnnealEpochs >= 1 &&
		conf.EvaluateEpochs >= 1 &&
		conf.ResultDir != "" &&
		conf.GIFWidth > 0 && conf.GIFRows > 0
}
