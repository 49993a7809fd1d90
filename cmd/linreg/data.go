package main

import (
	"math/rand"

	"gorgonia.org/tensor"
)

// dataset holds examples of y = x·w + b + noise.
type dataset struct {
	trueW []float32
	trueB float32

	trainX, trainY *tensor.Dense
	testX, testY   *tensor.Dense
}

func synthesize(conf Config) dataset {
	r := rand.New(rand.NewSource(conf.Seed))
	features := conf.Height * conf.Width

	ds := dataset{
		trueW: make([]float32, features),
		trueB: float32(r.NormFloat64()),
	}
	for i := range ds.trueW {
		ds.trueW[i] = float32(r.NormFloat64())
	}
	ds.trainX, ds.trainY = ds.sample(r, conf, conf.TrainSize)
	ds.testX, ds.testY = ds.sample(r, conf, conf.TestSize)
	return ds
}

func (ds dataset) sample(r *rand.Rand, conf Config, n int) (xs, ys *tensor.Dense) {
	features := len(ds.trueW)
	xBacking := make([]float32, n*features)
	yBacking := make([]float32, n)
	for i := 0; i < n; i++ {
		row := xBacking[i*features : (i+1)*features]
		y := ds.trueB + float32(r.NormFloat64()*conf.Noise)
		for j := range row {
			row[j] = float32(r.NormFloat64())
			y += row[j] * ds.trueW[j]
		}
		yBacking[i] = y
	}
	xs = tensor.New(tensor.WithShape(n, conf.Height, conf.Width), tensor.WithBacking(xBacking))
	ys = tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(yBacking))
	return
}
