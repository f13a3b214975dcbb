package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringOrDash(t *testing.T) {
	assert.Equal(t, "-", stringOrDash(""))
	assert.Equal(t, "-", stringOrDash("   "))
	assert.Equal(t, "acme", stringOrDash("acme"))
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	ns := nullString("report")
	assert.True(t, ns.Valid)
	assert.Equal(t, "report", ns.String)
}
