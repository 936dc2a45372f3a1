package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// ValidityWindow is how long a configuration may be served from cache,
// measured from its GeneratedAt timestamp.
const ValidityWindow = 24 * time.Hour

// ConfigurationChoice is the resolved state of one experiment.
type ConfigurationChoice struct {
	test     string
	selected string
	variants []string
}

// NewChoice creates a choice for test. An empty selected means the server has
// not assigned a variant yet. Duplicate variants are collapsed, keeping the
// first occurrence.
func NewChoice(test, selected string, variants ...string) ConfigurationChoice {
	seen := make(map[string]struct{}, len(variants))
	uniq := make([]string, 0, len(variants))
	for _, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	return ConfigurationChoice{test: test, selected: selected, variants: uniq}
}

// Test returns the experiment name.
func (c ConfigurationChoice) Test() string { return c.test }

// SelectedVariant returns the server-assigned variant, if any.
func (c ConfigurationChoice) SelectedVariant() (string, bool) {
	return c.selected, c.selected != ""
}

// Variants returns a copy of the variant names.
func (c ConfigurationChoice) Variants() []string {
	out := make([]string, len(c.variants))
	copy(out, c.variants)
	return out
}

// FirstVariant returns the first declared variant, if any.
func (c ConfigurationChoice) FirstVariant() (string, bool) {
	if len(c.variants) == 0 {
		return "", false
	}
	return c.variants[0], true
}

// Configuration is the experiment assignment snapshot for one user.
type Configuration struct {
	generatedAt time.Time
	userID      string
	kind        string
	choices     []ConfigurationChoice
	index       map[string]int
}

// NewConfiguration creates an immutable configuration. Choices are unique by
// test name; the first choice for a test wins.
func NewConfiguration(generatedAt time.Time, userID, kind string, choices ...ConfigurationChoice) *Configuration {
	cfg := &Configuration{
		generatedAt: generatedAt,
		userID:      userID,
		kind:        kind,
		choices:     make([]ConfigurationChoice, 0, len(choices)),
		index:       make(map[string]int, len(choices)),
	}
	for _, ch := range choices {
		if _, dup := cfg.index[ch.test]; dup {
			continue
		}
		cfg.index[ch.test] = len(cfg.choices)
		cfg.choices = append(cfg.choices, NewChoice(ch.test, ch.selected, ch.variants...))
	}
	return cfg
}

// GeneratedAt returns when the server produced this snapshot.
func (c *Configuration) GeneratedAt() time.Time { return c.generatedAt }

// UserID returns the optional user id metadata.
func (c *Configuration) UserID() string { return c.userID }

// Type returns the optional type metadata.
func (c *Configuration) Type() string { return c.kind }

// ExpiresAt returns the first instant at which the snapshot is stale.
func (c *Configuration) ExpiresAt() time.Time {
	return c.generatedAt.Add(ValidityWindow)
}

// ValidAt reports whether the snapshot may still be served at now.
// The boundary itself is stale.
func (c *Configuration) ValidAt(now time.Time) bool {
	return now.Before(c.ExpiresAt())
}

// Choices returns a copy of all choices.
func (c *Configuration) Choices() []ConfigurationChoice {
	out := make([]ConfigurationChoice, len(c.choices))
	copy(out, c.choices)
	return out
}

// Choice looks up the choice for test.
func (c *Configuration) Choice(test string) (ConfigurationChoice, bool) {
	if c == nil {
		return ConfigurationChoice{}, false
	}
	i, ok := c.index[test]
	if !ok {
		return ConfigurationChoice{}, false
	}
	return c.choices[i], true
}

// Assignments returns the experiment context pairs (test, selected variant)
// for every choice with a selected variant, sorted by test name.
func (c *Configuration) Assignments() []ExperimentContext {
	if c == nil {
		return nil
	}
	out := make([]ExperimentContext, 0, len(c.choices))
	for _, ch := range c.choices {
		if v, ok := ch.SelectedVariant(); ok {
			out = append(out, ExperimentContext{Name: ch.test, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type wireChoice struct {
	Name            string   `json:"name"`
	SelectedVariant *string  `json:"selected_variant,omitempty"`
	Variants        []string `json:"variants"`
}

type wireConfiguration struct {
	GeneratedAt json.Number  `json:"generated_at"`
	UserID      *string      `json:"user_id,omitempty"`
	Type        *string      `json:"type,omitempty"`
	Config      []wireChoice `json:"config"`
}

// MarshalJSON encodes the configuration in wire format.
func (c *Configuration) MarshalJSON() ([]byte, error) {
	w := wireConfiguration{
		GeneratedAt: json.Number(strconv.FormatInt(c.generatedAt.UnixMilli(), 10)),
		Config:      make([]wireChoice, 0, len(c.choices)),
	}
	if c.userID != "" {
		w.UserID = &c.userID
	}
	if c.kind != "" {
		w.Type = &c.kind
	}
	for _, ch := range c.choices {
		wc := wireChoice{Name: ch.test, Variants: ch.Variants()}
		if v, ok := ch.SelectedVariant(); ok {
			wc.SelectedVariant = &v
		}
		w.Config = append(w.Config, wc)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire-format configuration. generated_at and config
// are required; generated_at may be an integer or fractional millisecond count.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	var w wireConfiguration
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.GeneratedAt == "" {
		return fmt.Errorf("configuration: generated_at is required")
	}
	if w.Config == nil {
		return fmt.Errorf("configuration: config is required")
	}
	ms, err := parseMillis(w.GeneratedAt)
	if err != nil {
		return fmt.Errorf("configuration: generated_at: %w", err)
	}

	choices := make([]ConfigurationChoice, 0, len(w.Config))
	for _, wc := range w.Config {
		selected := ""
		if wc.SelectedVariant != nil {
			selected = *wc.SelectedVariant
		}
		choices = append(choices, NewChoice(wc.Name, selected, wc.Variants...))
	}
	var userID, kind string
	if w.UserID != nil {
		userID = *w.UserID
	}
	if w.Type != nil {
		kind = *w.Type
	}
	*c = *NewConfiguration(time.UnixMilli(ms), userID, kind, choices...)
	return nil
}

func parseMillis(n json.Number) (int64, error) {
	if ms, err := n.Int64(); err == nil {
		return ms, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s out of range", n)
	}
	return int64(f), nil
}
