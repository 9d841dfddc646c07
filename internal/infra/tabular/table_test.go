package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, table.Header)
	assert.Empty(t, table.Rows)
}

func TestCSVRoundTripPreservesQuoting(t *testing.T) {
	table := &Table{Header: []string{"Description", "Transaction ID"}}
	table.Append([][]string{
		{"Coffee, large", "tx-1"},
		{`Says "hi"`, "tx-2"},
	})

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	parsed, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table, parsed)
}

func TestEnsureHeader(t *testing.T) {
	table := &Table{}
	assert.True(t, table.EnsureHeader([]string{"A", "B"}))
	assert.False(t, table.EnsureHeader([]string{"C"}))
	assert.Equal(t, []string{"A", "B"}, table.Header)
}

func TestKeys(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "Transaction ID"},
		Rows: [][]string{
			{"2024-01-01", "a"},
			{"2024-01-02", ""},
			{"2024-01-03"},
			{"2024-01-04", "b"},
		},
	}

	assert.Equal(t, map[string]bool{"a": true, "b": true}, table.Keys("Transaction ID"))
	assert.Empty(t, table.Keys("Missing"))
}
