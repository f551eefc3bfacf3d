package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore captures uploads in memory.
type memoryStore struct {
	objects map[string][]byte
	fail    bool
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return nil
}

func writeArchiveFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forex_api.csv"), []byte("date,rate\n2025-06-10,1.08\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forex_web_scrape.csv"), []byte("date,rate\n2025-06-10,1.08\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))
	return dir
}

func listTarEntries(t *testing.T, data []byte) []string {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	var names []string
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}

func TestReplicateBundlesArchives(t *testing.T) {
	store := &memoryStore{}
	svc := NewArchiveBackupService(store, writeArchiveFiles(t), zerolog.Nop())

	require.NoError(t, svc.Replicate(context.Background(), "run-123"))
	require.Len(t, store.objects, 1)

	for key, data := range store.objects {
		assert.Contains(t, key, "forex-archive-")
		assert.Contains(t, key, ".tar.gz")

		entries := listTarEntries(t, data)
		assert.Contains(t, entries, "forex_api.csv")
		assert.Contains(t, entries, "forex_web_scrape.csv")
		assert.Contains(t, entries, "backup-metadata.json")
		assert.NotContains(t, entries, "notes.txt")
	}
}

func TestReplicateNothingToDo(t *testing.T) {
	store := &memoryStore{}
	svc := NewArchiveBackupService(store, t.TempDir(), zerolog.Nop())

	require.NoError(t, svc.Replicate(context.Background(), "run-123"))
	assert.Empty(t, store.objects)
}

func TestReplicateMissingDirectory(t *testing.T) {
	store := &memoryStore{}
	svc := NewArchiveBackupService(store, filepath.Join(t.TempDir(), "nope"), zerolog.Nop())

	assert.NoError(t, svc.Replicate(context.Background(), "run-123"))
}

func TestReplicateUploadFailure(t *testing.T) {
	store := &memoryStore{fail: true}
	svc := NewArchiveBackupService(store, writeArchiveFiles(t), zerolog.Nop())

	err := svc.Replicate(context.Background(), "run-123")
	assert.Error(t, err)
}
