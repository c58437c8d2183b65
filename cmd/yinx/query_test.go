package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFiltersEmpty(t *testing.T) {
	querySession, queryTool, querySince, queryUntil = "", "", "", ""

	filters, err := buildFilters()
	require.NoError(t, err)
	assert.Nil(t, filters)
}

func TestBuildFiltersTimeRange(t *testing.T) {
	querySession, queryTool = "", "nmap"
	querySince = "2026-01-02T15:04:05Z"
	queryUntil = ""
	t.Cleanup(func() { queryTool, querySince = "", "" })

	filters, err := buildFilters()
	require.NoError(t, err)
	require.NotNil(t, filters)
	assert.Equal(t, "nmap", filters.Tool)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), filters.Since.UTC())
}

func TestBuildFiltersInvalidTime(t *testing.T) {
	querySince = "yesterday"
	t.Cleanup(func() { querySince = "" })

	_, err := buildFilters()
	assert.Error(t, err)
}
