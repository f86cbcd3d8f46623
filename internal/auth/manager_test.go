package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/console/internal/errors"
)

func TestValidateToken(t *testing.T) {
	m := NewManager()

	assert.NoError(t, m.ValidateToken("claw-abc123"))

	for name, token := range map[string]string{
		"empty":      "",
		"whitespace": "   ",
		"inner gap":  "claw abc",
		"newline":    "claw\nabc",
	} {
		t.Run(name, func(t *testing.T) {
			err := m.ValidateToken(token)
			assert.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
		})
	}
}

func TestRedact(t *testing.T) {
	m := NewManager()

	assert.Equal(t, "", m.Redact(""))
	assert.Equal(t, "[REDACTED]", m.Redact("short"))

	long := "claw-1234567890abcdef"
	redacted := m.Redact(long)
	assert.NotEqual(t, long, redacted)
	assert.True(t, strings.HasPrefix(redacted, "claw"))
	assert.NotContains(t, redacted, "1234567890")
}