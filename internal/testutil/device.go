package testutil

// DefaultDeviceID is the device id handed out by FixedDeviceGenerator when
// none is given.
const DefaultDeviceID = "0190b6a0-0000-7000-8000-00000000d1ce"

// FixedDeviceGenerator returns the same device id every time.
//
// Unlike identity.FixedGenerator, which hands out ids in sequence and panics
// when they run out, this generator never runs dry. Use it where the number of
// generations is not the point of the test (for example a store that refuses
// writes, so every call regenerates).
//
// Thread-safety: FixedDeviceGenerator is stateless and safe for concurrent use.
type FixedDeviceGenerator struct {
	id string
}

// NewFixedDeviceGenerator creates a generator returning id, or
// DefaultDeviceID when id is empty.
func NewFixedDeviceGenerator(id string) *FixedDeviceGenerator {
	if id == "" {
		id = DefaultDeviceID
	}
	return &FixedDeviceGenerator{id: id}
}

// Generate returns the fixed device id.
//
// Implements identity.Generator.
func (g *FixedDeviceGenerator) Generate() string {
	return g.id
}
