// Package storetest opens throwaway sqlite-backed stores for package tests.
package storetest

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/genepanel-curator/internal/database"
	"github.com/genepanel-curator/internal/store"
)

// Open creates a migrated sqlite store in a temp directory, torn down with
// the test.
func Open(t *testing.T) *store.Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.Open(database.Config{
		Engine: database.EngineSQLite,
		Path:   filepath.Join(t.TempDir(), "curator.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db, logger))

	return store.New(db, logger)
}

// Logger returns a silenced logger for constructing components under test.
func Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
