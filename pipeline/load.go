package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Load reads a stage plan override from a YAML file.
func Load(path string) (Plan, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Plan{}, fmt.Errorf("plan path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to resolve plan path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan file %q: %w", absPath, err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to decode plan file %q as YAML: %w", absPath, err)
	}
	for i := range plan.Stages {
		plan.Stages[i].ID = strings.TrimSpace(plan.Stages[i].ID)
		plan.Stages[i].Name = strings.TrimSpace(plan.Stages[i].Name)
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid plan file %q: %w", absPath, err)
	}
	return plan, nil
}

// FromEnv returns the plan named by RESEARCH_PLAN_PATH, or the default plan
// when the variable is unset.
func FromEnv() (Plan, error) {
	path := strings.TrimSpace(os.Getenv("RESEARCH_PLAN_PATH"))
	if path == "" {
		return DefaultPlan(), nil
	}
	return Load(path)
}
