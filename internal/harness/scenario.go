package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/queue"
)

// Scenario defines a client scenario: the service's behaviour, the steps the
// application takes and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FlushPolicy selects the queue policy ("" means per-event).
	FlushPolicy string `yaml:"flush_policy,omitempty"`

	// Served is the configuration the fake service returns. Nil makes every
	// fetch fail with 404.
	Served *ConfigSpec `yaml:"served,omitempty"`

	// Cached is persisted before the client starts.
	Cached *ConfigSpec `yaml:"cached,omitempty"`

	// Flow contains the steps, executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ConfigSpec describes a configuration snapshot.
type ConfigSpec struct {
	// Age is how old the snapshot is when the scenario starts (e.g. "25h").
	Age string `yaml:"age,omitempty"`

	Experiments []Experiment `yaml:"experiments"`
}

// Experiment is one test of a configuration.
type Experiment struct {
	Name     string   `yaml:"name"`
	Selected string   `yaml:"selected,omitempty"`
	Variants []string `yaml:"variants"`
}

// Step is one flow step. Exactly one field must be set.
type Step struct {
	Configure *ConfigureStep `yaml:"configure,omitempty"`
	Log       *LogStep       `yaml:"log,omitempty"`
	Flush     bool           `yaml:"flush,omitempty"`
	Suspend   bool           `yaml:"suspend,omitempty"`
	Advance   string         `yaml:"advance,omitempty"`
	Service   *ServiceStep   `yaml:"service,omitempty"`
}

// ConfigureStep calls Configure and waits for the sequence to finish.
type ConfigureStep struct {
	Name   string `yaml:"name,omitempty"`
	UserID string `yaml:"user_id,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

// LogStep calls LogEvent.
type LogStep struct {
	Action   string `yaml:"action"`
	Category string `yaml:"category"`
	Screen   string `yaml:"screen"`
}

// ServiceStep changes the fake service's health. A zero status restores
// success.
type ServiceStep struct {
	FetchStatus  int `yaml:"fetch_status,omitempty"`
	SubmitStatus int `yaml:"submit_status,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number (fetch_count, delivered_count, pending).
	Count int `yaml:"count,omitempty"`

	// Test, Default and Expect describe a variant lookup (variant).
	Test    string `yaml:"test,omitempty"`
	Default string `yaml:"default,omitempty"`
	Expect  string `yaml:"expect,omitempty"`

	// Action, UserID and Context match a delivered event (delivered).
	// UserID and Context are optional; Context is a subset match.
	Action  string            `yaml:"action,omitempty"`
	UserID  string            `yaml:"user_id,omitempty"`
	Context map[string]string `yaml:"context,omitempty"`
}

// Assertion type constants.
const (
	AssertFetchCount     = "fetch_count"
	AssertDeliveredCount = "delivered_count"
	AssertDelivered      = "delivered"
	AssertPending        = "pending"
	AssertVariant        = "variant"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := queue.ParseFlushPolicy(s.FlushPolicy); err != nil {
		return err
	}

	for field, spec := range map[string]*ConfigSpec{"served": s.Served, "cached": s.Cached} {
		if spec == nil {
			continue
		}
		if err := spec.validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if _, err := step.kind(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Advance != "" {
			if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
				return fmt.Errorf("flow[%d]: advance must be a non-negative duration, got %q", i, step.Advance)
			}
		}
		if step.Log != nil && step.Log.Action == "" {
			return fmt.Errorf("flow[%d]: log action is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func (c *ConfigSpec) validate() error {
	if c.Age != "" {
		if _, err := time.ParseDuration(c.Age); err != nil {
			return fmt.Errorf("age: %w", err)
		}
	}
	for i, e := range c.Experiments {
		if e.Name == "" {
			return fmt.Errorf("experiments[%d]: name is required", i)
		}
	}
	return nil
}

// build creates the snapshot as seen from start.
func (c *ConfigSpec) build(start time.Time) *model.Configuration {
	var age time.Duration
	if c.Age != "" {
		age, _ = time.ParseDuration(c.Age)
	}
	choices := make([]model.ConfigurationChoice, 0, len(c.Experiments))
	for _, e := range c.Experiments {
		choices = append(choices, model.NewChoice(e.Name, e.Selected, e.Variants...))
	}
	return model.NewConfiguration(start.Add(-age), "", "", choices...)
}

// kind names the single action of the step.
func (s Step) kind() (string, error) {
	var kinds []string
	if s.Configure != nil {
		kinds = append(kinds, "configure")
	}
	if s.Log != nil {
		kinds = append(kinds, "log")
	}
	if s.Flush {
		kinds = append(kinds, "flush")
	}
	if s.Suspend {
		kinds = append(kinds, "suspend")
	}
	if s.Advance != "" {
		kinds = append(kinds, "advance")
	}
	if s.Service != nil {
		kinds = append(kinds, "service")
	}

	switch len(kinds) {
	case 0:
		return "", fmt.Errorf("step has no action")
	case 1:
		return kinds[0], nil
	default:
		return "", fmt.Errorf("step has several actions %v", kinds)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFetchCount, AssertDeliveredCount, AssertPending:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDelivered:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for delivered", index)
		}
	case AssertVariant:
		if a.Test == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: test and expect are required for variant", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
