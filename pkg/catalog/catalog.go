// Package catalog describes the upstream player sources: which of their
// columns identify a player, how those columns are named across sources, and
// how each source is published.
package catalog

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	Draft  = "draft"
	Roster = "roster"
	Player = "player"
	Map    = "map"

	// DraftIDField is derived from a player's draft year and overall pick.
	DraftIDField = "draft_id"
)

// Field is an identifier column and its meaning.
type Field struct {
	Name        string
	Description string
}

// DraftIDSpec names the columns a draft id is derived from.
type DraftIDSpec struct {
	YearColumn string
	PickColumn string
}

// Adapter turns a raw source table into a batch of identity records.
type Adapter interface {
	Name() string
	IDColumns() []string
	CanonicalColumns() []string
	Fields() []Field
	Aliases() map[string]string
	Partitioned() bool
	SeasonColumn() string
	FirstSeason() int
	URL(season int) string
	SplitBySeason() bool
	Project(table models.Table) (models.Table, error)
	Rename(table models.Table) models.Table
	Prepare(table models.Table) (models.Table, error)
}

// Source is a catalog entry. It implements Adapter.
type Source struct {
	name         string
	fields       []Field
	aliases      map[string]string
	partitioned  bool
	seasonColumn string
	firstSeason  int
	urlTemplate  string
	draftID      *DraftIDSpec
}

// SourceConfig describes a source for NewSource.
type SourceConfig struct {
	Name         string
	Fields       []Field
	Aliases      map[string]string
	Partitioned  bool
	SeasonColumn string
	FirstSeason  int
	URLTemplate  string
	DraftID      *DraftIDSpec
}

// NewSource creates a catalog entry.
func NewSource(cfg SourceConfig) *Source {
	aliases := make(map[string]string, len(cfg.Aliases))
	for k, v := range cfg.Aliases {
		aliases[k] = v
	}
	return &Source{
		name:         cfg.Name,
		fields:       append([]Field{}, cfg.Fields...),
		aliases:      aliases,
		partitioned:  cfg.Partitioned,
		seasonColumn: cfg.SeasonColumn,
		firstSeason:  cfg.FirstSeason,
		urlTemplate:  cfg.URLTemplate,
		draftID:      cfg.DraftID,
	}
}

func (s *Source) Name() string { return s.name }

// IDColumns returns the source's identifier column names, as published.
func (s *Source) IDColumns() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Source) Fields() []Field {
	return append([]Field{}, s.fields...)
}

// Aliases maps published column names to the canonical identifier name.
func (s *Source) Aliases() map[string]string {
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// Partitioned reports whether the source is published per season.
func (s *Source) Partitioned() bool { return s.partitioned }

// SeasonColumn names the column holding a row's season.
func (s *Source) SeasonColumn() string { return s.seasonColumn }

// FirstSeason is the earliest season the source publishes.
func (s *Source) FirstSeason() int { return s.firstSeason }

// URL returns the download location of a season. Sources published as a
// single file ignore season.
func (s *Source) URL(season int) string {
	if strings.Contains(s.urlTemplate, "%d") {
		return fmt.Sprintf(s.urlTemplate, season)
	}
	return s.urlTemplate
}

// SplitBySeason reports whether each season is a separate download.
func (s *Source) SplitBySeason() bool {
	return s.partitioned && strings.Contains(s.urlTemplate, "%d")
}

// CanonicalColumns returns the identifier columns under their canonical names.
func (s *Source) CanonicalColumns() []string {
	out := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		name := f.Name
		if to, ok := s.aliases[name]; ok {
			name = to
		}
		out = append(out, name)
	}
	return out
}

// Project keeps only the identifier columns of an alias-corrected table.
func (s *Source) Project(table models.Table) (models.Table, error) {
	projected, err := table.Project(s.CanonicalColumns())
	if err != nil {
		return models.Table{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "source %s: %s", s.name, err)
	}
	return projected, nil
}

// Rename applies the alias map.
func (s *Source) Rename(table models.Table) models.Table {
	return table.Rename(s.aliases)
}

// Prepare derives computed identifiers, corrects aliases and projects onto
// the identifier columns.
func (s *Source) Prepare(table models.Table) (models.Table, error) {
	return s.Project(s.Rename(s.deriveDraftID(table)))
}

// deriveDraftID adds draft_id as "<year>-<overall pick>" for every drafted
// player. Undrafted players keep a null draft_id.
func (s *Source) deriveDraftID(table models.Table) models.Table {
	if s.draftID == nil || table.HasColumn(DraftIDField) {
		return table
	}

	records := make([]models.Record, 0, table.Len())
	table.Each(func(_ int, r models.Record) {
		out := r.Clone()
		year, hasYear := models.NormalizeValue(r[s.draftID.YearColumn])
		pick, hasPick := models.NormalizeValue(r[s.draftID.PickColumn])
		if hasYear && hasPick {
			out[DraftIDField] = year + "-" + pick
		}
		records = append(records, out)
	})
	return models.NewTableWithColumns(append(table.Columns(), DraftIDField), records...)
}

// Catalog is the set of known sources.
type Catalog struct {
	sources map[string]*Source
}

// Default returns the nflverse and DynastyProcess sources.
func Default() *Catalog {
	return New(draftSource(), rosterSource(), playerSource(), mapSource())
}

// New builds a catalog from sources.
func New(sources ...*Source) *Catalog {
	c := &Catalog{sources: make(map[string]*Source, len(sources))}
	for _, s := range sources {
		c.sources[s.name] = s
	}
	return c
}

// Get returns the adapter for name.
func (c *Catalog) Get(name string) (*Source, error) {
	s, ok := c.sources[name]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", name)
	}
	return s, nil
}

// Names returns every source name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanonicalIDColumns returns every identifier column after alias correction, sorted.
func (c *Catalog) CanonicalIDColumns() []string {
	seen := make(map[string]struct{})
	for _, s := range c.sources {
		for _, col := range s.CanonicalColumns() {
			seen[col] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}
