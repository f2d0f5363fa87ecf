package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"status=Paid", "is_admin=true", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "Paid", "is_admin": "true", "note": "a=b"}, filters)

	filters, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)
}

func TestParseFilters_Invalid(t *testing.T) {
	for _, arg := range []string{"status", "=Paid", " =x"} {
		_, err := parseFilters([]string{arg})
		assert.Error(t, err, arg)
	}
}

func TestCell(t *testing.T) {
	assert.Equal(t, "-", cell(nil))
	assert.Equal(t, "short", cell("short"))
	assert.Equal(t, "12.5", cell(12.5))
	assert.Equal(t, "true", cell(true))

	long := "ééééééééééééééééééééééééééééééééééééééééééé"
	got := []rune(cell(long))
	assert.Len(t, got, 40)
	assert.Equal(t, "...", string(got[37:]))
}
