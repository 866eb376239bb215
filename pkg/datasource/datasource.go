// Package datasource fetches upstream player tables, keeping a local cache
// of every downloaded period.
package datasource

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// FetchRequest selects the periods of a source to return.
type FetchRequest struct {
	Source string
	// Seasons is ignored for sources that are not year-partitioned.
	Seasons []int
	// Refresh re-downloads the latest requested season, or the whole file of
	// a non-partitioned source, even when it is cached.
	Refresh bool
}

// DataSource returns raw source tables.
type DataSource interface {
	Fetch(ctx context.Context, req FetchRequest) (models.Table, error)
}

// CachedSource is a DataSource backed by a Provider and a local Cache.
type CachedSource struct {
	catalog  *catalog.Catalog
	provider Provider
	cache    *Cache
	logger   ectologger.Logger
}

// NewCachedSource creates a cached data source.
func NewCachedSource(c *catalog.Catalog, provider Provider, cache *Cache, logger ectologger.Logger) *CachedSource {
	return &CachedSource{
		catalog:  c,
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

// Fetch returns the requested periods of a source, concatenated in season order.
func (s *CachedSource) Fetch(ctx context.Context, req FetchRequest) (models.Table, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.CachedSource.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", req.Source),
		attribute.Int("seasons", len(req.Seasons)),
		attribute.Bool("refresh", req.Refresh),
	)

	adapter, err := s.catalog.Get(req.Source)
	if err != nil {
		return models.Table{}, err
	}

	meta, err := s.cache.Metadata()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read cache metadata")
		return models.Table{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read cache metadata")
	}
	entry := meta[adapter.Name()]

	if !adapter.Partitioned() {
		return s.fetchWhole(ctx, adapter, entry, req.Refresh)
	}
	return s.fetchSeasons(ctx, adapter, entry, req)
}

func (s *CachedSource) fetchWhole(ctx context.Context, adapter *catalog.Source, entry SourceMetadata, refresh bool) (models.Table, error) {
	log := s.logger.WithContext(ctx).WithField("source", adapter.Name())

	if entry.Whole && !refresh {
		table, err := s.cache.Read(adapter.Name(), 0)
		if err == nil {
			log.Debug("Using cached source")
			return table, nil
		}
		log.WithError(err).Warn("Cached source unreadable, downloading again")
	}

	table, err := s.download(ctx, adapter.URL(0))
	if err != nil {
		return models.Table{}, err
	}
	if err := s.cache.Write(adapter.Name(), 0, table); err != nil {
		log.WithError(err).Error("Failed to cache source")
		return models.Table{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to cache %s", adapter.Name())
	}

	log.Infof("Fetched %d rows", table.Len())
	return table, nil
}

func (s *CachedSource) fetchSeasons(ctx context.Context, adapter *catalog.Source, entry SourceMetadata, req FetchRequest) (models.Table, error) {
	seasons := uniqueSorted(req.Seasons)
	if len(seasons) == 0 {
		return models.NewTable(), nil
	}
	latest := seasons[len(seasons)-1]

	// Sources published as one file are downloaded at most once per fetch.
	downloaded := map[string]models.Table{}

	tables := make([]models.Table, 0, len(seasons))
	for _, season := range seasons {
		log := s.logger.WithContext(ctx).WithFields(map[string]any{
			"source": adapter.Name(),
			"season": season,
		})

		if entry.Has(season) && !(req.Refresh && season == latest) {
			table, err := s.cache.Read(adapter.Name(), season)
			if err == nil {
				tables = append(tables, table)
				continue
			}
			log.WithError(err).Warn("Cached season unreadable, downloading again")
		}

		table, err := s.fetchSeason(ctx, adapter, season, downloaded)
		if err != nil {
			if season == latest && httperror.GetStatusCode(err) == http.StatusNotFound {
				log.Warn("Season not published yet")
				continue
			}
			return models.Table{}, err
		}
		if err := s.cache.Write(adapter.Name(), season, table); err != nil {
			log.WithError(err).Error("Failed to cache season")
			return models.Table{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to cache %s %d", adapter.Name(), season)
		}

		log.Infof("Fetched %d rows", table.Len())
		tables = append(tables, table)
	}

	return concat(tables), nil
}

func (s *CachedSource) fetchSeason(ctx context.Context, adapter *catalog.Source, season int, downloaded map[string]models.Table) (models.Table, error) {
	url := adapter.URL(season)
	if adapter.SplitBySeason() {
		return s.download(ctx, url)
	}

	full, ok := downloaded[url]
	if !ok {
		var err error
		full, err = s.download(ctx, url)
		if err != nil {
			return models.Table{}, err
		}
		downloaded[url] = full
	}

	col := adapter.SeasonColumn()
	want := strconv.Itoa(season)
	return full.Filter(func(r models.Record) bool {
		return r[col] == want
	}), nil
}

func (s *CachedSource) download(ctx context.Context, url string) (models.Table, error) {
	body, err := s.provider.Download(ctx, url)
	if err != nil {
		return models.Table{}, err
	}

	table, err := ReadCSV(bytes.NewReader(body))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("url", url).Error("Failed to parse CSV")
		return models.Table{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to parse %s: %s", url, err)
	}
	return table, nil
}

func uniqueSorted(seasons []int) []int {
	out := make([]int, 0, len(seasons))
	seen := make(map[int]struct{}, len(seasons))
	for _, s := range seasons {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func concat(tables []models.Table) models.Table {
	var columns []string
	for _, t := range tables {
		columns = append(columns, t.Columns()...)
	}
	var records []models.Record
	for _, t := range tables {
		t.Each(func(_ int, r models.Record) {
			records = append(records, r)
		})
	}
	return models.NewTableWithColumns(columns, records...)
}
