// Package snippet holds the pieces shared by the training programs of this
// module: the results directory of an experiment and the persistence of
// trained parameters.
//
// The training machinery itself lives in the sub-packages: shape and
// distributions for building models, dataflow for mini-batches, trainer for
// the hook-driven training loop, and scaffold for the epoch/step budget.
package snippet

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	metricsFile = "result.yml"
	configFile  = "config.yml"
)

// Results is the output directory of an experiment. It accumulates the final
// metrics, which are written out on Close.
//
// Results is NOT goroutine-safe.
type Results struct {
	dir     string
	names   []string
	metrics map[string]float64
}

// NewResults creates dir if it does not exist yet.
func NewResults(dir string) (*Results, error) {
	if dir == "" {
		return nil, errors.New("no results directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Results{
		dir:     dir,
		metrics: make(map[string]float64),
	}, nil
}

// Dir returns the results directory.
func (r *Results) Dir() string { return r.dir }

// SystemPath returns the path of a file within the results directory.
func (r *Results) SystemPath(parts ...string) string {
	return filepath.Join(append([]string{r.dir}, parts...)...)
}

// MakeDirs creates a directory within the results directory. Unless existOK,
// it is an error for the directory to exist already.
func (r *Results) MakeDirs(name string, existOK bool) (string, error) {
	path := r.SystemPath(name)
	if !existOK {
		if _, err := os.Stat(path); err == nil {
			return "", errors.Errorf("%v already exists", path)
		}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// UpdateMetrics merges metrics into the results. Later values win.
func (r *Results) UpdateMetrics(metrics map[string]float64) {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := r.metrics[k]; !ok {
			r.names = append(r.names, k)
		}
		r.metrics[k] = metrics[k]
	}
}

// Metrics returns a copy of the metrics.
func (r *Results) Metrics() map[string]float64 {
	retVal := make(map[string]float64, len(r.metrics))
	for k, v := range r.metrics {
		retVal[k] = v
	}
	return retVal
}

// FormatMetrics formats the metrics one per line, in the order they were
// first reported.
func (r *Results) FormatMetrics() string {
	var buf bytes.Buffer
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%s: %.6g", name, r.metrics[name])
	}
	return buf.String()
}

// SaveConfig writes an experiment configuration as YAML.
func (r *Results) SaveConfig(conf interface{}) error {
	return r.writeYAML(configFile, conf)
}

// Close writes the metrics as YAML.
func (r *Results) Close() error {
	return r.writeYAML(metricsFile, r.metrics)
}

func (r *Results) writeYAML(name string, v interface{}) error {
	bs, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unable to marshal %v", name)
	}
	return errors.WithStack(ioutil.WriteFile(r.SystemPath(name), bs, 0644))
}

// LoadMetrics reads the metrics written by Close.
func LoadMetrics(dir string) (map[string]float64, error) {
	bs, err := ioutil.ReadFile(filepath.Join(dir, metricsFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	retVal := make(map[string]float64)
	if err = yaml.Unmarshal(bs, &retVal); err != nil {
		return nil, errors.Wrapf(err, "unable to read metrics from %v", dir)
	}
	return retVal, nil
}

// PrintWithTitle writes content under a title framed by a rule.
func PrintWithTitle(w io.Writer, title, content string) error {
	rule := strings.Repeat("=", len(title)+4)
	_, err := fmt.Fprintf(w, "%s\n  %s\n%s\n%s\n", rule, title, rule, content)
	return err
}
