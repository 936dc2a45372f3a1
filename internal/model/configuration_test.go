package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeneratedAt = time.UnixMilli(1700000000000)

func sampleConfiguration() *Configuration {
	return NewConfiguration(testGeneratedAt, "user-1", "ab",
		NewChoice("btn_color", "blue", "blue", "red"),
		NewChoice("headline", "", "a", "b"),
	)
}

func TestConfiguration_ValidAt(t *testing.T) {
	cfg := sampleConfiguration()

	assert.True(t, cfg.ValidAt(testGeneratedAt))
	assert.True(t, cfg.ValidAt(testGeneratedAt.Add(ValidityWindow-time.Millisecond)))
	assert.False(t, cfg.ValidAt(testGeneratedAt.Add(ValidityWindow)), "boundary is stale")
	assert.False(t, cfg.ValidAt(testGeneratedAt.Add(48*time.Hour)))
	assert.Equal(t, testGeneratedAt.Add(24*time.Hour), cfg.ExpiresAt())
}

func TestConfiguration_Choice(t *testing.T) {
	cfg := sampleConfiguration()

	ch, ok := cfg.Choice("btn_color")
	require.True(t, ok)
	assert.Equal(t, "btn_color", ch.Test())
	v, ok := ch.SelectedVariant()
	assert.True(t, ok)
	assert.Equal(t, "blue", v)

	ch, ok = cfg.Choice("headline")
	require.True(t, ok)
	_, ok = ch.SelectedVariant()
	assert.False(t, ok, "headline has no assignment yet")
	first, ok := ch.FirstVariant()
	assert.True(t, ok)
	assert.Equal(t, "a", first)

	_, ok = cfg.Choice("unknown")
	assert.False(t, ok)
}

func TestConfiguration_NilChoice(t *testing.T) {
	var cfg *Configuration
	_, ok := cfg.Choice("btn_color")
	assert.False(t, ok)
	assert.Nil(t, cfg.Assignments())
}

func TestConfiguration_UniqueByTest(t *testing.T) {
	cfg := NewConfiguration(testGeneratedAt, "", "",
		NewChoice("t", "x", "x"),
		NewChoice("t", "y", "y"),
	)
	require.Len(t, cfg.Choices(), 1)
	ch, _ := cfg.Choice("t")
	v, _ := ch.SelectedVariant()
	assert.Equal(t, "x", v, "first choice for a test wins")
}

func TestChoice_VariantsDeduplicated(t *testing.T) {
	ch := NewChoice("t", "", "a", "b", "a", "c", "b")
	assert.Equal(t, []string{"a", "b", "c"}, ch.Variants())
}

func TestConfiguration_Immutable(t *testing.T) {
	cfg := sampleConfiguration()

	choices := cfg.Choices()
	choices[0] = NewChoice("mutated", "")
	ch, ok := cfg.Choice("btn_color")
	require.True(t, ok)

	variants := ch.Variants()
	variants[0] = "mutated"
	again, _ := cfg.Choice("btn_color")
	assert.Equal(t, []string{"blue", "red"}, again.Variants())
	_, ok = cfg.Choice("mutated")
	assert.False(t, ok)
}

func TestConfiguration_Assignments(t *testing.T) {
	cfg := NewConfiguration(testGeneratedAt, "", "",
		NewChoice("zeta", "z1", "z1"),
		NewChoice("alpha", "a1", "a1"),
		NewChoice("unassigned", "", "u1"),
	)
	assert.Equal(t, []ExperimentContext{
		{Name: "alpha", Value: "a1"},
		{Name: "zeta", Value: "z1"},
	}, cfg.Assignments())
}

func TestConfiguration_WireGolden(t *testing.T) {
	data, err := json.Marshal(sampleConfiguration())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "configuration_wire", data)
}

func TestConfiguration_UnmarshalServerPayload(t *testing.T) {
	payload := `{
		"generated_at": 1700000000000,
		"config": [
			{"name": "btn_color", "selected_variant": "blue", "variants": ["blue", "red"]},
			{"name": "layout", "variants": ["grid", "list"]}
		]
	}`

	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(payload), &cfg))

	assert.True(t, cfg.GeneratedAt().Equal(testGeneratedAt))
	assert.Empty(t, cfg.UserID())
	assert.Empty(t, cfg.Type())
	require.Len(t, cfg.Choices(), 2)

	ch, ok := cfg.Choice("layout")
	require.True(t, ok)
	_, ok = ch.SelectedVariant()
	assert.False(t, ok)
}

func TestConfiguration_UnmarshalFractionalMillis(t *testing.T) {
	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(`{"generated_at": 1700000000000.0, "config": []}`), &cfg))
	assert.Equal(t, int64(1700000000000), cfg.GeneratedAt().UnixMilli())
}

func TestConfiguration_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing generated_at", `{"config": []}`},
		{"missing config", `{"generated_at": 1}`},
		{"bad generated_at", `{"generated_at": "soon", "config": []}`},
		{"not json", `nope`},
		{"wrong variants type", `{"generated_at": 1, "config": [{"name": "t", "variants": "a"}]}`},
		{"generated_at above int64", `{"generated_at": 1e19, "config": []}`},
		{"generated_at below int64", `{"generated_at": -1e300, "config": []}`},
		{"generated_at overflows float", `{"generated_at": 1e400, "config": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Configuration
			assert.Error(t, json.Unmarshal([]byte(tt.payload), &cfg))
		})
	}
}

func TestConfiguration_RoundTrip(t *testing.T) {
	original := sampleConfiguration()
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Configuration
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.GeneratedAt().Equal(original.GeneratedAt()))
	assert.Equal(t, original.UserID(), decoded.UserID())
	assert.Equal(t, original.Type(), decoded.Type())
	assert.Equal(t, original.Choices(), decoded.Choices())
}
