// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/go-unarchive"
)

func TestGzipUnpackTar(t *testing.T) {
	data := compressGzip(t, packTar(t, []archiveContent{
		{Name: "dir/", Filetype: tar.TypeDir, Mode: 0755},
		{Name: "dir/a.txt", Content: []byte("a")},
		{Name: "b.txt", Content: bytes.Repeat([]byte("b"), 32<<10)},
	}))

	a, err := unarchive.FromBytes(data)
	require.NoError(t, err)
	require.Equal(t, unarchive.FormatGZip, a.Format())

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, a.Unarchive(context.Background(), dst, nil))

	got, err := os.ReadFile(filepath.Join(dst, "dir", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("b"), 32<<10), got)
}

func TestGzipUnpackSingleFile(t *testing.T) {
	payload := []byte(`{"hello": "world"}`)
	large := bytes.Repeat([]byte("0123456789"), 10<<10)

	tests := []struct {
		name        string
		archiveName string
		payload     []byte
		dst         func(tmp string) string
		wantPath    func(tmp string) string
		opts        []unarchive.ConfigOption
	}{
		{
			name:        "destination is the output file",
			archiveName: "data.json.gz",
			payload:     payload,
			dst:         func(tmp string) string { return filepath.Join(tmp, "result.json") },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "result.json") },
		},
		{
			name:        "destination in a missing directory",
			archiveName: "data.json.gz",
			payload:     payload,
			dst:         func(tmp string) string { return filepath.Join(tmp, "a", "b", "result.json") },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "a", "b", "result.json") },
		},
		{
			name:        "destination is an existing directory",
			archiveName: "data.json.gz",
			payload:     payload,
			dst:         func(tmp string) string { return tmp },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "data.json") },
		},
		{
			name:        "destination with trailing separator",
			archiveName: "data.json.gz",
			payload:     payload,
			dst:         func(tmp string) string { return filepath.Join(tmp, "out") + string(os.PathSeparator) },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "out", "data.json") },
		},
		{
			name:        "archive without gzip extension",
			archiveName: "data",
			payload:     payload,
			dst:         func(tmp string) string { return tmp },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "data.decompressed") },
		},
		{
			name:        "payload larger than the sniffed prefix",
			archiveName: "large.txt.gz",
			payload:     large,
			dst:         func(tmp string) string { return filepath.Join(tmp, "large.txt") },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "large.txt") },
		},
		{
			name:        "tar payload without untar",
			archiveName: "archive.tar.gz",
			payload:     packTar(t, []archiveContent{{Name: "a.txt", Content: []byte("a")}}),
			dst:         func(tmp string) string { return filepath.Join(tmp, "archive.tar") },
			wantPath:    func(tmp string) string { return filepath.Join(tmp, "archive.tar") },
			opts:        []unarchive.ConfigOption{unarchive.WithNoUntarAfterDecompression(true)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tmp := t.TempDir()
			src := filepath.Join(t.TempDir(), test.archiveName)
			require.NoError(t, os.WriteFile(src, compressGzip(t, test.payload), 0640))

			a, err := unarchive.FromPath(src)
			require.NoError(t, err)
			require.NoError(t, a.Unarchive(context.Background(), test.dst(tmp), unarchive.NewConfig(test.opts...)))

			got, err := os.ReadFile(test.wantPath(tmp))
			require.NoError(t, err)
			assert.Equal(t, test.payload, got)
		})
	}
}

func TestGzipUnpackSingleFileFromBytes(t *testing.T) {
	a, err := unarchive.FromBytes(compressGzip(t, []byte("content")))
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, a.Unarchive(context.Background(), dst, nil))

	got, err := os.ReadFile(filepath.Join(dst, "unarchived-content"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestGzipUnpackSingleFileOverwrite(t *testing.T) {
	tmp := t.TempDir()
	dst := writeFile(t, tmp, "result", []byte("existing"))

	a, err := unarchive.FromBytes(compressGzip(t, []byte("content")))
	require.NoError(t, err)
	err = a.Unarchive(context.Background(), dst, unarchive.NewConfig(unarchive.WithOverwrite(false)))
	requireKind(t, err, unarchive.KindUnknown)
	assert.ErrorIs(t, err, unarchive.ErrFileExists)

	a, err = unarchive.FromBytes(compressGzip(t, []byte("content")))
	require.NoError(t, err)
	require.NoError(t, a.Unarchive(context.Background(), dst, nil))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestGzipUnpackSingleFileWithoutCreateDestination(t *testing.T) {
	a, err := unarchive.FromBytes(compressGzip(t, []byte("content")))
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "missing", "result")
	err = a.Unarchive(context.Background(), dst, unarchive.NewConfig(unarchive.WithCreateDestination(false)))
	requireKind(t, err, unarchive.KindIO)
	assert.NoFileExists(t, dst)
}

func TestGzipUnpackCorrupt(t *testing.T) {
	data := compressGzip(t, bytes.Repeat([]byte("payload"), 1024))

	// truncate the deflate stream and the trailer
	a, err := unarchive.FromBytes(data[:len(data)/2])
	require.NoError(t, err)
	require.Equal(t, unarchive.FormatGZip, a.Format())

	err = a.Unarchive(context.Background(), filepath.Join(t.TempDir(), "out"), nil)
	requireKind(t, err, unarchive.KindIO)
}

func TestGzipUnpackTarToMemory(t *testing.T) {
	data := compressGzip(t, packTar(t, []archiveContent{{Name: "hello.txt", Content: []byte("hi")}}))
	a, err := unarchive.FromBytes(data)
	require.NoError(t, err)

	mem := unarchive.NewTargetMemory()
	require.NoError(t, a.Unarchive(context.Background(), "out", unarchive.NewConfig(unarchive.WithTarget(mem))))

	got, err := mem.ReadFile("out/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}
