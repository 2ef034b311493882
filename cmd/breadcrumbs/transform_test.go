package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunDate(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	// 03:00 UTC on May 2 is still May 1 in Portland.
	now := time.Date(2023, 5, 2, 3, 0, 0, 0, time.UTC)

	d, err := parseRunDate(nil, now, la)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 30, 0, 0, 0, 0, la), d)

	d, err = parseRunDate([]string{"2023-05-01"}, now, la)
	require.NoError(t, err)
	assert.Equal(t, "2023-05-01", d.Format("2006-01-02"))
	assert.Equal(t, la, d.Location())

	d, err = parseRunDate(nil, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []string{"05/01/2023", "2023-13-01", "yesterday"} {
		_, err := parseRunDate([]string{bad}, now, la)
		assert.Error(t, err, bad)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"collect", "subscribe", "transform", "schema"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, transformCmd.Flags().Lookup("no-clear"))
	assert.NotNil(t, transformCmd.Flags().Lookup("batch-size"))
}
