package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebdav "golang.org/x/net/webdav"

	"github.com/davgo/webdav"
	"github.com/davgo/webdav/cmd/davc/config"
)

func newTestContext(t *testing.T) *Context {
	srv := httptest.NewServer(&xwebdav.Handler{
		FileSystem: xwebdav.NewMemFS(),
		LockSystem: xwebdav.NewMemLS(),
	})
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Server = srv.URL
	cfg.Retry = 1
	cli, err := webdav.NewClient(srv.URL, webdav.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return &Context{Client: cli, Config: cfg}
}

func TestCommands(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()
	local := t.TempDir()

	require.NoError(t, onRunMkdir(ctx, c, &mkdirArgs{parents: true}, "/backup/old/"))
	require.NoError(t, onRunMkdir(ctx, c, &mkdirArgs{parents: true}, "backup/old"))
	assert.Error(t, onRunMkdir(ctx, c, &mkdirArgs{}, "missing/child"))

	src := filepath.Join(local, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("remember the milk"), 0o600))
	require.NoError(t, onRunPut(ctx, c, &putArgs{dir: "backup/old"}, []string{src}))

	var out bytes.Buffer
	require.NoError(t, onRunLs(ctx, c, &lsArgs{depth: "1"}, "backup/old", &out))
	assert.Contains(t, out.String(), "notes.txt")
	assert.Contains(t, out.String(), "17 B")

	out.Reset()
	require.NoError(t, onRunStat(ctx, c, &statArgs{}, "backup/old/notes.txt", &out))
	assert.Contains(t, out.String(), "collection:    false")

	dst := filepath.Join(local, "partial.txt")
	require.NoError(t, onRunGet(ctx, c, &getArgs{output: dst, rng: "0-7"}, "backup/old/notes.txt"))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "remember", string(b))

	require.NoError(t, onRunTransfer(ctx, c, &transferArgs{}, false, "backup/old/notes.txt", "backup/copy.txt"))
	assert.Error(t, onRunTransfer(ctx, c, &transferArgs{noOverwrite: true}, false, "backup/old/notes.txt", "backup/copy.txt"))
	require.NoError(t, onRunTransfer(ctx, c, &transferArgs{dir: true}, true, "backup/old", "backup/new"))

	out.Reset()
	require.NoError(t, onRunLs(ctx, c, &lsArgs{depth: "1"}, "backup", &out))
	assert.Contains(t, out.String(), "new")
	assert.NotContains(t, out.String(), "old")

	require.NoError(t, onRunRm(ctx, c, &rmArgs{recursive: true}, []string{"backup"}))
	_, err = c.Client.GetFolder(ctx, "backup")
	assert.True(t, webdav.IsNotFound(err))

	out.Reset()
	require.NoError(t, onRunCaps(ctx, c, "", &out))
	assert.Contains(t, out.String(), "classes: 1, 2")

	assert.Error(t, onRunLs(ctx, c, &lsArgs{depth: "2"}, "", &out))
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("10-20")
	require.NoError(t, err)
	assert.Equal(t, int64(10), start)
	assert.Equal(t, int64(20), end)

	for _, s := range []string{"", "10", "a-2", "1-b"} {
		_, _, err := parseRange(s)
		assert.Error(t, err, s)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "davc_config.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"server":"https://dav.example.com","retry":5}`), 0o600))

	c, err := loadConfig([]string{"", filepath.Join(dir, "missing.json"), good})
	require.NoError(t, err)
	assert.Equal(t, "https://dav.example.com", c.Server)
	assert.Equal(t, 5, c.Retry)

	t.Setenv("DAVC_SERVER", "")
	_, err = loadConfig([]string{filepath.Join(dir, "missing.json")})
	assert.Error(t, err)

	t.Setenv("DAVC_SERVER", "http://localhost:8080")
	c, err = loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.Server)
}
