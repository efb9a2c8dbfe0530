package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFilter(t *testing.T) {
	queryVendor, queryStart, queryEnd, queryLimit = "acme", "2024-01-01", "", 25
	t.Cleanup(func() { queryVendor, queryStart, queryEnd, queryLimit = "", "", "", 0 })

	f, err := searchFilter()
	require.NoError(t, err)
	assert.Equal(t, "acme", f.Vendor)
	assert.Equal(t, 25, f.Limit)
	require.NotNil(t, f.StartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
	assert.Nil(t, f.EndDate)

	queryEnd = "01/31/2024"
	_, err = searchFilter()
	assert.ErrorContains(t, err, "--end")
}

func TestEmit(t *testing.T) {
	rows := func() [][]string { return [][]string{{"North", "2"}} }

	var buf bytes.Buffer
	require.NoError(t, emit(&buf, map[string]int{"orders": 2}, []string{"Branch", "Orders"}, rows))
	assert.Contains(t, buf.String(), "North")

	queryJSON = true
	t.Cleanup(func() { queryJSON = false })
	buf.Reset()
	require.NoError(t, emit(&buf, map[string]int{"orders": 2}, nil, rows))
	assert.JSONEq(t, `{"orders":2}`, buf.String())

	queryJSON = false
	buf.Reset()
	require.NoError(t, emit(&buf, nil, nil, func() [][]string { return nil }))
	assert.Equal(t, "no data\n", buf.String())
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "import", "query", "jobs", "dataset", "watch"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, "xlsx", extOf("/tmp/orders.xlsx"))
	assert.Equal(t, "", extOf("orders"))
}
