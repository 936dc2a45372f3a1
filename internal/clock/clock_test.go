package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestFunc_Now(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	c := Func(func() time.Time { return fixed })

	assert.True(t, c.Now().Equal(fixed))
}
