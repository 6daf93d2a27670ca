package xid

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrefixAndIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("prd")
		require.True(t, strings.HasPrefix(id, "prd-"), id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestInvoiceFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	inv := Invoice("INV", at)

	assert.Regexp(t, regexp.MustCompile(`^INV-20260314-\d{6}-[0-9A-F]{4}$`), inv)
	assert.Contains(t, inv, fmt.Sprintf("-%06d-", at.UnixMilli()%1_000_000))
}
