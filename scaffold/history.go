package scaffold

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
)

// create opens filename for writing. It is swapped in tests.
var create = func(filename string) (io.WriteCloser, error) {
	return os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
}

// History holds the mean of every metric for each finished epoch.
type History struct {
	Names  []string // in order of first appearance
	Epochs []int
	Values map[string][]float64 // NaN where a metric was not reported
}

func makeHistory() History {
	return History{
		Names:  make([]string, 0, 8),
		Epochs: make([]int, 0, 64),
		Values: make(map[string][]float64),
	}
}

func (h *History) update(epoch int, names []string, means map[string]float64) {
	for _, name := range names {
		if _, ok := h.Values[name]; !ok {
			h.Names = append(h.Names, name)
			col := make([]float64, len(h.Epochs))
			for i := range col {
				col[i] = math.NaN()
			}
			h.Values[name] = col
		}
	}
	h.Epochs = append(h.Epochs, epoch)
	for _, name := range h.Names {
		v, ok := means[name]
		if !ok {
			v = math.NaN()
		}
		h.Values[name] = append(h.Values[name], v)
	}
}

// Last returns the value of a metric at the last recorded epoch.
func (h *History) Last(name string) (float64, bool) {
	col := h.Values[name]
	if len(col) == 0 || math.IsNaN(col[len(col)-1]) {
		return 0, false
	}
	return col[len(col)-1], true
}

// Dump writes the history to filename as CSV, one row per epoch.
func (h *History) Dump(filename string) (err error) {
	f, err := create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"epoch"}, h.Names...)); err != nil {
		return err
	}
	records := make([][]string, 0, len(h.Epochs))
	for i, epoch := range h.Epochs {
		record := make([]string, len(h.Names)+1)
		record[0] = strconv.Itoa(epoch)
		for j, name := range h.Names {
			if v := h.Values[name][i]; !math.IsNaN(v) {
				record[j+1] = strconv.FormatFloat(v, 'f', 6, 64)
			}
		}
		records = append(records, record)
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
