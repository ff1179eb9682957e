package helper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGUID(t *testing.T) {
	a, b := GUID(), GUID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewUID(t *testing.T) {
	uid := NewUID()
	assert.True(t, strings.HasPrefix(uid, "2.25."))
	assert.LessOrEqual(t, len(uid), 64)
	assert.NotEqual(t, uid, NewUID())
	for _, c := range strings.TrimPrefix(uid, "2.25.") {
		assert.True(t, c >= '0' && c <= '9')
	}
}
