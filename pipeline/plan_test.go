package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/talentsift/research-sdk-go/types"
)

func TestDefaultPlan_IsValidAndOrdered(t *testing.T) {
	plan := DefaultPlan()
	if err := plan.Validate(); err != nil {
		t.Fatalf("default plan invalid: %v", err)
	}
	if plan.Stages[0].ID != "initialization" {
		t.Fatalf("unexpected first stage: %s", plan.Stages[0].ID)
	}
	if plan.Index("match-evaluation") != len(plan.Stages)-1 {
		t.Fatalf("match-evaluation should be the last stage")
	}
	if plan.TotalHintSeconds() <= 0 {
		t.Fatalf("expected positive total hint")
	}
}

func TestPlanValidate_RejectsBadPlans(t *testing.T) {
	if err := (Plan{}).Validate(); err == nil {
		t.Fatalf("expected empty plan error")
	}
	dup := Plan{Stages: []StageSpec{{ID: "a"}, {ID: "a"}}}
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	neg := Plan{Stages: []StageSpec{{ID: "a", HintSeconds: -1}}}
	if err := neg.Validate(); err == nil {
		t.Fatalf("expected negative hint error")
	}
}

func TestMaterialize_StartsAllPending(t *testing.T) {
	stages := DefaultPlan().Materialize()
	if len(stages) != len(DefaultPlan().Stages) {
		t.Fatalf("unexpected stage count: %d", len(stages))
	}
	for _, stage := range stages {
		if stage.Status != types.StagePending {
			t.Fatalf("stage %s should start pending, got %s", stage.ID, stage.Status)
		}
		if stage.Progress != 0 {
			t.Fatalf("stage %s should start at zero progress", stage.ID)
		}
	}
}

func TestLoad_ReadsYAMLPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `stages:
  - id: initialization
    name: Warm up
    hintSeconds: 5
  - id: match-evaluation
    name: Score
    hintSeconds: 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	plan, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(plan.Stages) != 2 || plan.Stages[1].HintSeconds != 20 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestLoad_RejectsInvalidPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte("stages: []\n"), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid plan error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
