package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorgonia/snippet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(t *testing.T) Config {
	dir, err := os.MkdirTemp("", "linreg")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := DefaultConfig()
	conf.TrainSize = 256
	conf.TestSize = 64
	conf.MaxEpoch = 20
	conf.ResultDir = filepath.Join(dir, "results")
	return conf
}

func TestConfig(t *testing.T) {
	assert.True(t, DefaultConfig().IsValid())

	conf := DefaultConfig()
	conf.TestSize = conf.BatchSize - 1
	assert.False(t, conf.IsValid())

	conf = DefaultConfig()
	conf.LRAnnealFactor = 1.5
	assert.False(t, conf.IsValid())
}

func TestModel(t *testing.T) {
	conf := DefaultConfig()
	m, err := newModel(conf)
	require.NoError(t, err)
	assert.Equal(t, []int{conf.BatchSize, 1}, []int(m.pred.Shape()))
	assert.True(t, m.cost.IsScalar())
	assert.Equal(t, []int{conf.Height * conf.Width, 1}, []int(m.w.Shape()))

	other, err := newModel(conf)
	require.NoError(t, err)
	require.NoError(t, other.shareParams(m))
	assert.Equal(t, m.w.Value(), other.w.Value())
}

func TestSynthesize(t *testing.T) {
	conf := smallConfig(t)
	ds := synthesize(conf)
	assert.Equal(t, []int{conf.TrainSize, conf.Height, conf.Width}, []int(ds.trainX.Shape()))
	assert.Equal(t, []int{conf.TestSize, 1}, []int(ds.testY.Shape()))

	again := synthesize(conf)
	assert.Equal(t, ds.trueW, again.trueW, "the seed makes the data reproducible")
}

func TestRun(t *testing.T) {
	conf := smallConfig(t)
	results, err := run(conf, ioutil.Discard)
	require.NoError(t, err)

	metrics := results.Metrics()
	assert.Contains(t, metrics, "valid_time")
	assert.Less(t, metrics["best_valid_loss"], 0.01)

	for _, name := range []string{"result.yml", "config.yml", "history.csv", "params.gob", "train.gif", "trainer.dot"} {
		assert.FileExists(t, results.SystemPath(name))
	}

	saved, err := snippet.LoadMetrics(conf.ResultDir)
	require.NoError(t, err)
	assert.Equal(t, metrics, saved)

	m, err := newModel(conf)
	require.NoError(t, err)
	require.NoError(t, snippet.LoadParams(results.SystemPath("params.gob"), m.params()))
	w, _ := m.weights()
	ds := synthesize(conf)
	for i := range w {
		assert.InDelta(t, ds.trueW[i], w[i], 0.05)
	}
}
