package trainer

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the hook schedule of the trainer as a Graphviz graph: the
// stages of one step of the loop in order, each with its hooks in calling
// order.
func (t *BaseTrainer) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("Trainer"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	stages := []struct {
		name string
		l    *HookList
	}{
		{"BeforeEpochs", t.beforeEpochs},
		{"BeforeSteps", t.beforeSteps},
		{"RunStep", nil},
		{"AfterSteps", t.afterSteps},
		{"AfterEpochs", t.afterEpochs},
	}

	var prev string
	for _, s := range stages {
		g.AddNode("Trainer", s.name, map[string]string{
			"shape": "box",
			"label": fmt.Sprintf("%q", s.name),
		})
		if prev != "" {
			g.AddEdge(prev, s.name, true, nil)
		}
		prev = s.name

		if s.l == nil {
			continue
		}
		for i, h := range s.l.hooks {
			id := fmt.Sprintf("%s_%d", s.name, i)
			g.AddNode("Trainer", id, map[string]string{
				"shape": "ellipse",
				"label": fmt.Sprintf("%q", fmt.Sprintf("%v every %d", h.Priority, h.Freq)),
			})
			g.AddEdge(s.name, id, true, map[string]string{
				"label": fmt.Sprintf("%q", fmt.Sprint(i)),
			})
		}
	}
	// steps repeat within an epoch
	g.AddEdge("AfterSteps", "BeforeSteps", true, map[string]string{"style": "dashed"})
	return g.String()
}
