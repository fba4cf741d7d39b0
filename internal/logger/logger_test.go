package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		l := New(env, "board")
		assert.NotNil(t, l.SugaredLogger)
		assert.Equal(t, "board", l.component)
	}
}

func TestNamedAndWith(t *testing.T) {
	l := Nop()
	child := l.Named("resolver").With("sprint_id", 3)
	assert.Equal(t, "resolver", child.component)
	assert.NotNil(t, child.Desugar())
	child.Infow("resolved", "user_id", "5")
}
