package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeepsPrefixAndIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("sale")
		require.True(t, strings.HasPrefix(id, "sale-"), id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestCodeLength(t *testing.T) {
	assert.Len(t, Code(8), 8)
	assert.Len(t, Code(0), 32)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}$`), Code(8))
}

func TestConfirmationFormat(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	got := Confirmation("BNPL", at)
	assert.Regexp(t, regexp.MustCompile(`^BNPL-20260309-[0-9A-F]{8}$`), got)
}
