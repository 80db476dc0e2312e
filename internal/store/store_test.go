package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// 23:30 UTC is already the next day two hours east.
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

	got := startOfDay(ts, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), got)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), startOfDay(ts, time.UTC))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "001_jobs.sql", entries[0].Name())
	assert.Equal(t, "002_pages.sql", entries[1].Name())
}

func TestOptions(t *testing.T) {
	s := &Store{lease: time.Minute, loc: time.UTC}
	WithClaimLease(0)(s)
	WithLocation(nil)(s)
	assert.Equal(t, time.Minute, s.lease)
	assert.Equal(t, time.UTC, s.loc)

	WithClaimLease(time.Hour)(s)
	assert.Equal(t, time.Hour, s.lease)
}
