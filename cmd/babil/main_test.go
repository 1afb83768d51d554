package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babil/internal/database"
	"babil/internal/identity"
	"babil/internal/markup"
	"babil/internal/page"
	"babil/internal/wiki"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "babil.yaml")
	body := fmt.Sprintf(`
storage:
  backend: sqlite
  dsn: %s
audio:
  engine: tone
  dir: %s
log:
  level: error
`, filepath.Join(dir, "babil.db"), filepath.Join(dir, "audio"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "babil dev")
}

func TestAdminGrantAndRevoke(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	out, err := run(t, "--config", path, "admin", "grant", "minou", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "minou: write=true admin=true")

	db, err := database.New(filepath.Join(dir, "babil.db"))
	require.NoError(t, err)
	gate := identity.NewGate(identity.NewSQLRepository(db), false)
	admin, err := gate.IsAdmin(context.Background(), "minou")
	require.NoError(t, err)
	assert.True(t, admin)
	db.Close()

	out, err = run(t, "--config", path, "admin", "revoke", "minou")
	require.NoError(t, err)
	assert.Contains(t, out, "minou: write=false admin=false")
}

func TestRenderAudio(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	db, err := database.New(filepath.Join(dir, "babil.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	engine := wiki.New(page.NewSQLRepository(db), markup.New(), nil, nil)
	_, err = engine.Catalog.CreatePage(context.Background(), wiki.CreatePageRequest{
		Name: "chat", Title: "Le Chat", Markdown: "miaou", Editor: "minou",
	})
	require.NoError(t, err)
	db.Close()

	out, err := run(t, "--config", path, "page", "render-audio", "Chat")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "audio", "chat.wav"))
	assert.FileExists(t, filepath.Join(dir, "audio", "chat.wav"))

	_, err = run(t, "--config", path, "page", "render-audio", "chien")
	assert.ErrorIs(t, err, wiki.ErrNotFound)
}
