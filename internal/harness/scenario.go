package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a population scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the directory of CUE table declarations. LoadScenario
	// resolves it relative to the scenario file.
	Catalog string `yaml:"catalog"`

	// RunID is the fixed run id attached to population logs.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Setup maps table names to rows inserted before the first step.
	Setup map[string][]map[string]any `yaml:"setup,omitempty"`

	// Steps are populate calls, run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one populate call.
type Step struct {
	// Populate names the auto-populated table.
	Populate string `yaml:"populate"`

	// Restrict limits the keys populated to those with these values.
	Restrict map[string]any `yaml:"restrict,omitempty"`

	SuppressErrors bool `yaml:"suppress_errors,omitempty"`

	// MaxAttempts bounds conflict retries; zero uses the default.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Fail scripts maker failures for matching keys.
	Fail []KeyScript `yaml:"fail,omitempty"`

	// Conflict scripts transaction conflicts for matching keys.
	Conflict []KeyScript `yaml:"conflict,omitempty"`

	// Expect checks the step outcome. If nil, the step must not fail.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// KeyScript selects keys by subset match and scripts their outcome.
type KeyScript struct {
	Key map[string]any `yaml:"key"`

	// Times is how many attempts conflict; zero means every attempt.
	// Conflict entries only.
	Times int `yaml:"times,omitempty"`

	// Error is the failure message; defaults to "scripted failure".
	// Fail entries only.
	Error string `yaml:"error,omitempty"`
}

// StepExpect specifies the expected outcome of a step.
type StepExpect struct {
	Made   *int `yaml:"made,omitempty"`
	Failed *int `yaml:"failed,omitempty"`

	// Error is a substring of the expected fatal error. Empty means the
	// step must complete.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final database.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Count rows of Table matching Where
	// - "pending": Count keys of Table still unpopulated (restricted by Where)
	// - "rows": Every row of Table matching Where has the Expect values
	// - "make_count": Count trace events of Table whose key matches Key
	Type string `yaml:"type"`

	Table string `yaml:"table"`

	// Where restricts the rows or keys considered.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected attribute values (used by rows).
	// Subset match - only specified attributes are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Key selects trace events (used by make_count).
	Key map[string]any `yaml:"key,omitempty"`

	// Count is the expected number (used by row_count, pending, make_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount  = "row_count"
	AssertPending   = "pending"
	AssertRows      = "rows"
	AssertMakeCount = "make_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The catalog path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, in walk order.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(path); !info.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if info, err := os.Stat(s.Catalog); err != nil || !info.IsDir() {
		return fmt.Errorf("catalog directory not found: %s", s.Catalog)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Populate == "" {
			return fmt.Errorf("steps[%d]: populate is required", i)
		}
		if step.MaxAttempts < 0 {
			return fmt.Errorf("steps[%d]: max_attempts must be non-negative", i)
		}
		for j, f := range step.Fail {
			if len(f.Key) == 0 {
				return fmt.Errorf("steps[%d].fail[%d]: key is required", i, j)
			}
		}
		for j, c := range step.Conflict {
			if len(c.Key) == 0 {
				return fmt.Errorf("steps[%d].conflict[%d]: key is required", i, j)
			}
			if c.Times < 0 {
				return fmt.Errorf("steps[%d].conflict[%d]: times must be non-negative", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Table == "" {
		return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
	}

	switch a.Type {
	case AssertRowCount, AssertPending:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRows:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for rows", index)
		}
	case AssertMakeCount:
		if len(a.Key) == 0 {
			return fmt.Errorf("assertions[%d]: key is required for make_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for make_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
