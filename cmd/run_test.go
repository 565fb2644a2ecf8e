// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTar writes a tar archive with files to path.
func createTar(t *testing.T, path string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0640,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0640))
}

// createZip writes a zip archive with files to path.
func createZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0640))
}

func testCLI(archives ...string) *CLI {
	return &CLI{
		Archives:          archives,
		CreateDestination: true,
		MaxExtractionSize: -1,
		MaxFiles:          -1,
		MaxInputSize:      -1,
		Parallel:          2,
		Timeout:           time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "-", want: "stdin"},
		{path: "a.tar.gz", want: "a"},
		{path: "dir/b.TGZ", want: "b"},
		{path: "c.tar", want: "c"},
		{path: "d.zip", want: "d"},
		{path: "/tmp/e.json.gz", want: "e.json"},
		{path: "archive", want: "archive.d"},
		{path: ".zip", want: ".zip.d"},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			assert.Equal(t, test.want, archiveStem(test.path))
		})
	}
}

func TestDestinationFor(t *testing.T) {
	assert.Equal(t, "out", destinationFor("out", "a.tar", false))
	assert.Equal(t, filepath.Join("out", "a"), destinationFor("out", "a.tar", true))
	assert.Equal(t, "stdin", destinationFor(".", "-", true))
}

func TestCountStdin(t *testing.T) {
	assert.Equal(t, 0, countStdin([]string{"a.tar"}))
	assert.Equal(t, 2, countStdin([]string{"-", "a.tar", "-"}))
}

func TestRunInvalidArguments(t *testing.T) {
	ctx := context.Background()
	assert.EqualError(t, run(ctx, testCLI(), discardLogger(), nil, io.Discard), "no archive given")
	assert.EqualError(t, run(ctx, testCLI("-", "-"), discardLogger(), nil, io.Discard), "STDIN can only be used once")
}

func TestRunSingleArchive(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "test.tar")
	createTar(t, archive, map[string]string{"hello.txt": "hello", "dir/world.txt": "world"})

	cli := testCLI(archive)
	cli.Destination = filepath.Join(tmp, "out")
	require.NoError(t, run(context.Background(), cli, discardLogger(), nil, io.Discard))

	data, err := os.ReadFile(filepath.Join(tmp, "out", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	data, err = os.ReadFile(filepath.Join(tmp, "out", "dir", "world.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestRunSeveralArchives(t *testing.T) {
	tmp := t.TempDir()
	createTar(t, filepath.Join(tmp, "a.tar"), map[string]string{"file": "from tar"})
	createZip(t, filepath.Join(tmp, "b.zip"), map[string]string{"file": "from zip"})

	cli := testCLI(filepath.Join(tmp, "a.tar"), filepath.Join(tmp, "b.zip"))
	cli.Destination = filepath.Join(tmp, "out")
	require.NoError(t, run(context.Background(), cli, discardLogger(), nil, io.Discard))

	data, err := os.ReadFile(filepath.Join(tmp, "out", "a", "file"))
	require.NoError(t, err)
	assert.Equal(t, "from tar", string(data))
	data, err = os.ReadFile(filepath.Join(tmp, "out", "b", "file"))
	require.NoError(t, err)
	assert.Equal(t, "from zip", string(data))
}

func TestRunStdin(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "test.tar")
	createTar(t, archive, map[string]string{"hello.txt": "hello"})
	data, err := os.ReadFile(archive)
	require.NoError(t, err)

	cli := testCLI("-")
	cli.Destination = filepath.Join(tmp, "out")
	require.NoError(t, run(context.Background(), cli, discardLogger(), bytes.NewReader(data), io.Discard))
	assert.FileExists(t, filepath.Join(tmp, "out", "hello.txt"))
}

func TestRunDryRun(t *testing.T) {
	tmp := t.TempDir()
	createTar(t, filepath.Join(tmp, "a.tar"), map[string]string{"hello.txt": "hello", "dir/world.txt": "world"})

	cli := testCLI(filepath.Join(tmp, "a.tar"))
	cli.Destination = filepath.Join(tmp, "out")
	cli.DryRun = true

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), cli, discardLogger(), nil, &stdout))
	assert.Equal(t, "dir\ndir/world.txt\nhello.txt\n", stdout.String())
	assert.NoDirExists(t, filepath.Join(tmp, "out"))
}

func TestRunDryRunSeveralArchives(t *testing.T) {
	tmp := t.TempDir()
	createTar(t, filepath.Join(tmp, "a.tar"), map[string]string{"file": "a"})
	createZip(t, filepath.Join(tmp, "b.zip"), map[string]string{"file": "b"})

	cli := testCLI(filepath.Join(tmp, "a.tar"), filepath.Join(tmp, "b.zip"))
	cli.DryRun = true

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), cli, discardLogger(), nil, &stdout))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.ElementsMatch(t, []string{"a", "a/file", "b", "b/file"}, lines)
}

func TestRunFailure(t *testing.T) {
	tmp := t.TempDir()
	createTar(t, filepath.Join(tmp, "a.tar"), map[string]string{"1": "1", "2": "2", "3": "3"})

	cli := testCLI(filepath.Join(tmp, "a.tar"), filepath.Join(tmp, "missing.tar"))
	cli.Destination = filepath.Join(tmp, "out")
	err := run(context.Background(), cli, discardLogger(), nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.tar")

	cli = testCLI(filepath.Join(tmp, "a.tar"))
	cli.Destination = filepath.Join(tmp, "limited")
	cli.MaxFiles = 2
	err = run(context.Background(), cli, discardLogger(), nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum files exceeded")
}

func TestRunTelemetryLogging(t *testing.T) {
	tmp := t.TempDir()
	createTar(t, filepath.Join(tmp, "a.tar"), map[string]string{"file": "a"})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cli := testCLI(filepath.Join(tmp, "a.tar"))
	cli.Destination = filepath.Join(tmp, "out")
	cli.Telemetry = true
	require.NoError(t, run(context.Background(), cli, logger, nil, io.Discard))
	assert.Contains(t, buf.String(), "extraction finished")
	assert.Contains(t, buf.String(), "extracted_files")
}

func TestTOMLLoader(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "unarchive.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
max-files = 10
max_input_size = 2048
deny_symlinks = true
timeout = "5m"
destination = "/tmp/out"
`), 0640))

	var cli CLI
	parser, err := kong.New(&cli, kong.Configuration(TOMLLoader, cfgPath))
	require.NoError(t, err)
	_, err = parser.Parse([]string{"a.tar"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.tar"}, cli.Archives)
	assert.Equal(t, int64(10), cli.MaxFiles)
	assert.Equal(t, int64(2048), cli.MaxInputSize)
	assert.True(t, cli.DenySymlinks)
	assert.Equal(t, 5*time.Minute, cli.Timeout)
	assert.Equal(t, "/tmp/out", cli.Destination)

	// flags take precedence over the configuration file
	_, err = parser.Parse([]string{"--max-files=3", "a.tar"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cli.MaxFiles)
}

func TestTOMLLoaderInvalid(t *testing.T) {
	_, err := TOMLLoader(strings.NewReader("max-files = "))
	assert.ErrorContains(t, err, "cannot decode TOML configuration")
}
