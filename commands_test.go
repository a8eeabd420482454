package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "ask", "query", "migrate"})

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.NotNil(t, migrate.Flags().Lookup("steps"))
}

func TestMigrate_RequiresPostgresDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: test
connections:
  default:
    type: sqlite
    dsn: ":memory:"
`), 0o600))

	a, err := loadApp(path)
	require.NoError(t, err)
	defer a.close()

	err = withDirectoryDB(context.Background(), a, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the directory schema requires postgres")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))

	assert.Error(t, root.Execute())
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
