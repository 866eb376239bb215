package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/klauspost/compress/zstd"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// FileStore persists a snapshot as one zstd-compressed JSON document.
// A save writes a temporary file next to the target and renames it into
// place, so readers see either the previous or the new snapshot.
type FileStore struct {
	path   string
	logger ectologger.Logger
}

// NewFileStore creates a file store at path.
func NewFileStore(path string, logger ectologger.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "snapshot path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "snapshot path %s is a directory", path)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. It returns a 404 error when the file does not exist.
func (s *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.FileStore.Load")
	defer span.End()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "snapshot %s not found", s.path)
		}
		s.logger.WithContext(ctx).WithError(err).WithField("path", s.path).Error("Failed to open snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to open snapshot")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read snapshot")
	}
	defer dec.Close()

	snap := models.NewSnapshot()
	if err := json.NewDecoder(dec).Decode(snap); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("path", s.path).Error("Failed to decode snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode snapshot")
	}
	if snap.Coverage == nil {
		snap.Coverage = models.Coverage{}
	}
	return snap, nil
}

// Save atomically replaces the snapshot file.
func (s *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.FileStore.Save")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("path", s.path)

	if snap.SavedAt.IsZero() {
		copied := *snap
		copied.SavedAt = time.Now().UTC()
		snap = &copied
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Error("Failed to create snapshot directory")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create snapshot directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		log.WithError(err).Error("Failed to create temporary snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		log.WithError(err).Error("Failed to encode snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}
	if err := enc.Close(); err != nil {
		log.WithError(err).Error("Failed to flush snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		log.WithError(err).Error("Failed to sync snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		log.WithError(err).Error("Failed to commit snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit snapshot")
	}
	committed = true

	log.WithFields(map[string]any{
		"history_rows": snap.History.Len(),
		"entity_rows":  snap.Entities.Len(),
	}).Info("Saved snapshot")
	return nil
}
