// Package pipeline describes the fixed stage sequence a research run moves
// through. The plan is the client-side contract: stage ids match the ones the
// pipeline reports, and duration hints feed the time-remaining estimate.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/talentsift/research-sdk-go/types"
)

type StageSpec struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	HintSeconds int    `json:"hintSeconds" yaml:"hintSeconds"`
}

type Plan struct {
	Stages []StageSpec `json:"stages" yaml:"stages"`
}

// DefaultPlan mirrors the pipeline's execution order.
func DefaultPlan() Plan {
	return Plan{Stages: []StageSpec{
		{ID: "initialization", Name: "Initializing pipeline", HintSeconds: 10},
		{ID: "role-requirements", Name: "Building role requirements", HintSeconds: 45},
		{ID: "person-research", Name: "Researching candidate", HintSeconds: 90},
		{ID: "company-research", Name: "Researching company", HintSeconds: 60},
		{ID: "match-evaluation", Name: "Evaluating match", HintSeconds: 30},
	}}
}

func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, stage := range p.Stages {
		id := strings.TrimSpace(stage.ID)
		if id == "" {
			return fmt.Errorf("stage %d has no id", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate stage id %q", id)
		}
		seen[id] = true
		if stage.HintSeconds < 0 {
			return fmt.Errorf("stage %q has negative duration hint", id)
		}
	}
	return nil
}

// Index returns the position of a stage id in the plan, or -1.
func (p Plan) Index(id string) int {
	for i, stage := range p.Stages {
		if stage.ID == id {
			return i
		}
	}
	return -1
}

// Materialize builds the initial pending stage list for a new run.
func (p Plan) Materialize() []types.Stage {
	out := make([]types.Stage, 0, len(p.Stages))
	for _, spec := range p.Stages {
		name := spec.Name
		if strings.TrimSpace(name) == "" {
			name = spec.ID
		}
		out = append(out, types.Stage{
			ID:          spec.ID,
			Name:        name,
			Status:      types.StagePending,
			HintSeconds: spec.HintSeconds,
		})
	}
	return out
}

func (p Plan) TotalHintSeconds() int {
	total := 0
	for _, stage := range p.Stages {
		total += stage.HintSeconds
	}
	return total
}
