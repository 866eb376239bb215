package datasource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Ramsey-B/clover/pkg/models"
)

const metadataFile = "metadata.json"

// SourceMetadata records what has been cached for a source.
type SourceMetadata struct {
	// Seasons lists the cached periods of a year-partitioned source.
	Seasons []int `json:"seasons,omitempty"`
	// Whole is set once a non-partitioned source has been cached.
	Whole     bool      `json:"whole,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Has reports whether season is cached.
func (m SourceMetadata) Has(season int) bool {
	i := sort.SearchInts(m.Seasons, season)
	return i < len(m.Seasons) && m.Seasons[i] == season
}

// Cache stores downloaded periods as zstd-compressed CSV files.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache creates a cache rooted at dir, creating the directory if needed.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// FileName returns the cache file of a period. A season of 0 names the
// whole-source file.
func FileName(source string, season int) string {
	if season == 0 {
		return source + ".csv.zst"
	}
	return source + "-" + strconv.Itoa(season) + ".csv.zst"
}

// Read loads a cached period.
func (c *Cache) Read(source string, season int) (models.Table, error) {
	f, err := os.Open(filepath.Join(c.dir, FileName(source, season)))
	if err != nil {
		return models.Table{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return models.Table{}, err
	}
	defer dec.Close()

	return ReadCSV(dec)
}

// Write stores a period and records it in the metadata.
func (c *Cache) Write(source string, season int, table models.Table) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if err := WriteCSV(enc, table); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(c.dir, FileName(source, season)), buf.Bytes()); err != nil {
		return err
	}
	return c.mark(source, season)
}

// Metadata returns the cache metadata of every source.
func (c *Cache) Metadata() (map[string]SourceMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readMetadata()
}

func (c *Cache) mark(source string, season int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.readMetadata()
	if err != nil {
		return err
	}

	entry := meta[source]
	if season == 0 {
		entry.Whole = true
	} else if !entry.Has(season) {
		entry.Seasons = append(entry.Seasons, season)
		sort.Ints(entry.Seasons)
	}
	entry.UpdatedAt = time.Now().UTC()
	meta[source] = entry

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(c.dir, metadataFile), data)
}

func (c *Cache) readMetadata() (map[string]SourceMetadata, error) {
	meta := map[string]SourceMetadata{}
	data, err := os.ReadFile(filepath.Join(c.dir, metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metadataFile, err)
	}
	return meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
