package datasource

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeProvider struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeProvider(bodies map[string]string) *fakeProvider {
	return &fakeProvider{bodies: bodies, calls: map[string]int{}}
}

func (p *fakeProvider) Download(_ context.Context, url string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[url]++
	body, ok := p.bodies[url]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "%s not found", url)
	}
	return []byte(body), nil
}

func (p *fakeProvider) set(url, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies[url] = body
}

func (p *fakeProvider) count(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

const (
	weeklyURL = "https://example.test/weekly_%d.csv"
	picksURL  = "https://example.test/picks.csv"
	idsURL    = "https://example.test/ids.csv"
)

func testCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.NewSource(catalog.SourceConfig{
			Name:         "weekly",
			Fields:       []catalog.Field{{Name: "gsis_id"}},
			Partitioned:  true,
			SeasonColumn: "season",
			URLTemplate:  weeklyURL,
		}),
		catalog.NewSource(catalog.SourceConfig{
			Name:         "picks",
			Fields:       []catalog.Field{{Name: "pfr_id"}},
			Partitioned:  true,
			SeasonColumn: "season",
			URLTemplate:  picksURL,
		}),
		catalog.NewSource(catalog.SourceConfig{
			Name:        "ids",
			Fields:      []catalog.Field{{Name: "gsis_id"}},
			URLTemplate: idsURL,
		}),
	)
}

func newTestSource(t *testing.T, provider Provider) (*CachedSource, *Cache) {
	t.Helper()
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewCachedSource(testCatalog(), provider, cache, logger), cache
}

func TestFetch_SplitBySeason(t *testing.T) {
	ctx := context.Background()
	url2020 := "https://example.test/weekly_2020.csv"
	url2021 := "https://example.test/weekly_2021.csv"
	provider := newFakeProvider(map[string]string{
		url2020: "season,gsis_id\n2020,A\n",
		url2021: "season,gsis_id\n2021,B\n",
	})
	src, cache := newTestSource(t, provider)

	table, err := src.Fetch(ctx, FetchRequest{Source: "weekly", Seasons: []int{2021, 2020}})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "A", table.At(0)["gsis_id"])
	assert.Equal(t, "B", table.At(1)["gsis_id"])

	meta, err := cache.Metadata()
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2021}, meta["weekly"].Seasons)

	t.Run("cached seasons are reused", func(t *testing.T) {
		_, err := src.Fetch(ctx, FetchRequest{Source: "weekly", Seasons: []int{2020, 2021}})
		require.NoError(t, err)
		assert.Equal(t, 1, provider.count(url2020))
		assert.Equal(t, 1, provider.count(url2021))
	})

	t.Run("refresh downloads only the latest season", func(t *testing.T) {
		provider.set(url2021, "season,gsis_id\n2021,B\n2021,C\n")

		table, err := src.Fetch(ctx, FetchRequest{Source: "weekly", Seasons: []int{2020, 2021}, Refresh: true})
		require.NoError(t, err)
		assert.Equal(t, 3, table.Len())
		assert.Equal(t, 1, provider.count(url2020))
		assert.Equal(t, 2, provider.count(url2021))
	})
}

func TestFetch_SingleFileFilteredBySeason(t *testing.T) {
	provider := newFakeProvider(map[string]string{
		picksURL: "season,pick,pfr_id\n1999,1,X\n2000,1,A\n2000,2,B\n2001,1,C\n",
	})
	src, cache := newTestSource(t, provider)

	table, err := src.Fetch(context.Background(), FetchRequest{Source: "picks", Seasons: []int{2000, 2001}})
	require.NoError(t, err)

	var ids []string
	table.Each(func(_ int, r models.Record) { ids = append(ids, r["pfr_id"]) })
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	assert.Equal(t, 1, provider.count(picksURL))

	meta, err := cache.Metadata()
	require.NoError(t, err)
	assert.Equal(t, []int{2000, 2001}, meta["picks"].Seasons)
}

func TestFetch_NonPartitioned(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider(map[string]string{idsURL: "gsis_id,name\nA,Tom\n"})
	src, cache := newTestSource(t, provider)

	table, err := src.Fetch(ctx, FetchRequest{Source: "ids", Seasons: []int{2020}})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, err = src.Fetch(ctx, FetchRequest{Source: "ids"})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.count(idsURL))

	provider.set(idsURL, "gsis_id,name\nA,Tom\nB,Drew\n")
	table, err = src.Fetch(ctx, FetchRequest{Source: "ids", Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 2, provider.count(idsURL))

	meta, err := cache.Metadata()
	require.NoError(t, err)
	assert.True(t, meta["ids"].Whole)
}

func TestFetch_MissingSeason(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider(map[string]string{
		"https://example.test/weekly_2020.csv": "season,gsis_id\n2020,A\n",
	})
	src, _ := newTestSource(t, provider)

	t.Run("latest season not yet published", func(t *testing.T) {
		table, err := src.Fetch(ctx, FetchRequest{Source: "weekly", Seasons: []int{2020, 2021}})
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
	})

	t.Run("earlier season missing", func(t *testing.T) {
		_, err := src.Fetch(ctx, FetchRequest{Source: "weekly", Seasons: []int{2019, 2020}})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestFetch_UnknownSource(t *testing.T) {
	src, _ := newTestSource(t, newFakeProvider(nil))

	_, err := src.Fetch(context.Background(), FetchRequest{Source: "pbp"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestFetch_EmptySeasons(t *testing.T) {
	provider := newFakeProvider(nil)
	src, _ := newTestSource(t, provider)

	table, err := src.Fetch(context.Background(), FetchRequest{Source: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, provider.calls)
}

func TestCache_FileName(t *testing.T) {
	assert.Equal(t, "map.csv.zst", FileName("map", 0))
	assert.Equal(t, "roster-2023.csv.zst", FileName("roster", 2023))
	assert.False(t, strings.Contains(FileName("draft", 1999), "/"))
}
