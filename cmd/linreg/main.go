// Command linreg fits a linear regression on synthetic data, annealing the
// learning rate and evaluating on a test set as it goes. The results, the
// training history, the trained parameters and a GIF of the training logs
// are written to the results directory.
package main

import (
	"io"
	"io/ioutil"
	"log"
	"os"

	"github.com/gorgonia/snippet"
	"github.com/gorgonia/snippet/dataflow"
	"github.com/gorgonia/snippet/encoding/gif"
	"github.com/gorgonia/snippet/scaffold"
	"github.com/gorgonia/snippet/trainer"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

func main() {
	conf := DefaultConfig()
	results, err := run(conf, os.Stderr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	snippet.PrintWithTitle(os.Stdout, "Results", results.FormatMetrics())
}

func run(conf Config, logOut io.Writer) (results *snippet.Results, err error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid configuration %+v", conf)
	}
	if results, err = snippet.NewResults(conf.ResultDir); err != nil {
		return nil, err
	}
	if err = results.SaveConfig(conf); err != nil {
		return nil, err
	}

	gifFile, err := os.OpenFile(results.SystemPath("train.gif"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer gifFile.Close()
	gifEnc := gif.NewEncoder(gifFile, conf.GIFWidth, conf.GIFRows)
	logger := log.New(io.MultiWriter(logOut, gifEnc), "", log.Ltime)

	ds := synthesize(conf)
	trainFlow, err := dataflow.Arrays([]*tensor.Dense{ds.trainX, ds.trainY}, conf.BatchSize,
		dataflow.Shuffle(conf.Seed), dataflow.SkipIncomplete())
	if err != nil {
		return nil, err
	}
	testFlow, err := dataflow.Arrays([]*tensor.Dense{ds.testX, ds.testY}, conf.BatchSize, dataflow.SkipIncomplete())
	if err != nil {
		return nil, err
	}

	train, err := newModel(conf)
	if err != nil {
		return nil, err
	}
	eval, err := newModel(conf)
	if err != nil {
		return nil, err
	}

	loop, err := scaffold.New(train.params(), scaffold.Config{
		MaxEpoch:        conf.MaxEpoch,
		ValidMetricName: "valid_loss",
		EarlyStopping:   true,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	lr := trainer.NewAnnealingDynamicValue(conf.InitialLR, conf.LRAnnealFactor)
	tr, err := trainer.NewLossTrainer(loop, trainFlow, train.cost, train.params(), train.inputs(),
		trainer.WithLearningRate(lr),
		trainer.WithFiniteCheck(),
		trainer.WithBaseOptions(trainer.WithLogger(logger)),
	)
	if err != nil {
		return nil, err
	}

	evaluator, err := trainer.NewEvaluator(loop, testFlow, trainer.EvaluatorConfig{
		Inputs:         eval.inputs(),
		Metrics:        []trainer.Metric{{Name: "valid_loss", Node: eval.cost}},
		TimeMetricName: "valid_time",
	})
	if err != nil {
		tr.Close()
		return nil, err
	}
	defer evaluator.Close()

	if err = wire(conf, tr, evaluator, lr, results, train, eval); err != nil {
		tr.Close()
		return nil, err
	}
	if err = ioutil.WriteFile(results.SystemPath("trainer.dot"), []byte(tr.ToDot()), 0644); err != nil {
		tr.Close()
		return nil, errors.WithStack(err)
	}

	err = tr.Run()
	// closing the trainer restores the parameters of the best valid_loss
	if cerr := tr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	w, b := train.weights()
	logger.Printf("Learned w = %v, b = %v (true w = %v, b = %v)", w, b, ds.trueW, ds.trueB)
	if best, ok := loop.BestValidMetric(); ok {
		results.UpdateMetrics(map[string]float64{"best_valid_loss": best})
	}

	if err = loop.History().Dump(results.SystemPath("history.csv")); err != nil {
		return nil, errors.WithStack(err)
	}
	if err = snippet.SaveParams(results.SystemPath("params.gob"), train.params()); err != nil {
		return nil, err
	}
	if err = gifEnc.Flush(); err != nil {
		return nil, err
	}
	return results, results.Close()
}

// wire schedules the hooks of the experiment.
func wire(conf Config, tr *trainer.LossTrainer, ev *trainer.Evaluator, lr *trainer.AnnealingDynamicValue, results *snippet.Results, train, eval *model) error {
	if _, err := ev.BeforeRun().AddHook(func() error {
		return eval.shareParams(train)
	}, 1, trainer.DefaultPriority); err != nil {
		return err
	}
	if _, err := ev.AfterRun().AddHook(func() error {
		results.UpdateMetrics(ev.LastMetrics())
		return nil
	}, 1, trainer.DefaultPriority); err != nil {
		return err
	}

	if err := tr.AnnealAfter(lr, trainer.Every{Epochs: conf.LRAnnealEpochs}); err != nil {
		return err
	}
	if err := tr.EvaluateAfterEpochs(ev, conf.EvaluateEpochs); err != nil {
		return err
	}
	return tr.LogAfterEpochs(1)
}
