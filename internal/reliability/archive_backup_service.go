package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// uploader abstracts the object store so the service is testable without a bucket.
type uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// ArchiveBackupService bundles the per-source archive files into a tar.gz
// with a checksum manifest and uploads it. Replication is best-effort: the
// caller logs a failure and moves on, local archives stay authoritative.
type ArchiveBackupService struct {
	store        uploader
	processedDir string
	log          zerolog.Logger
}

// BackupMetadata describes one uploaded archive bundle.
type BackupMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes a single archived file.
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// NewArchiveBackupService creates the replication service.
func NewArchiveBackupService(store uploader, processedDir string, log zerolog.Logger) *ArchiveBackupService {
	return &ArchiveBackupService{
		store:        store,
		processedDir: processedDir,
		log:          log.With().Str("service", "archive_backup").Logger(),
	}
}

// Replicate archives the processed CSVs and uploads the bundle.
func (s *ArchiveBackupService) Replicate(ctx context.Context, runID string) error {
	startTime := time.Now()

	files, err := s.listArchiveFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		s.log.Info().Msg("No archive files to replicate")
		return nil
	}

	stagingDir, err := os.MkdirTemp("", "archive-staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Files:     make([]FileMetadata, 0, len(files)),
	}

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", file, err)
		}
		checksum, err := calculateChecksum(file)
		if err != nil {
			return fmt.Errorf("failed to calculate checksum for %s: %w", file, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{
			Filename:  filepath.Base(file),
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("forex-archive-%s.tar.gz", time.Now().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, append(files, metadataPath)); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int("files", len(files)).
		Msg("Archive replication completed")

	return nil
}

// listArchiveFiles returns the per-source CSVs in a stable order.
func (s *ArchiveBackupService) listArchiveFiles() ([]string, error) {
	entries, err := os.ReadDir(s.processedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read processed directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(s.processedDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func calculateChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, file := range files {
		if err := addToArchive(tw, file); err != nil {
			return fmt.Errorf("failed to add %s: %w", file, err)
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
