package models

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Table is an ordered collection of records. Its columns are the union of the
// fields of every record added to it, in order of first appearance.
//
// Tables are treated as values: operations return new tables and never modify
// records in place.
type Table struct {
	columns []string
	index   map[string]struct{}
	records []Record
}

// NewTable creates a table from the given records.
func NewTable(records ...Record) Table {
	return NewTableWithColumns(nil, records...)
}

// NewTableWithColumns creates a table whose column order starts with columns.
// Columns are kept even if no record has a value for them.
func NewTableWithColumns(columns []string, records ...Record) Table {
	t := Table{}
	t.addColumns(columns...)
	t.records = make([]Record, 0, len(records))
	for _, r := range records {
		t.append(r)
	}
	return t
}

func (t *Table) addColumns(columns ...string) {
	if t.index == nil {
		t.index = make(map[string]struct{})
	}
	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = struct{}{}
		t.columns = append(t.columns, c)
	}
}

func (t *Table) append(r Record) {
	if r == nil {
		r = Record{}
	}
	t.addColumns(r.Fields()...)
	t.records = append(t.records, r)
}

// Append returns a new table with the records added after the existing ones.
func (t Table) Append(records ...Record) Table {
	out := NewTableWithColumns(t.columns, t.records...)
	for _, r := range records {
		out.append(r)
	}
	return out
}

// Columns returns the table's field names.
func (t Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether any record (or the declared schema) carries the field.
func (t Table) HasColumn(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.records)
}

// At returns a copy of the record at position i.
func (t Table) At(i int) Record {
	return t.records[i].Clone()
}

// Records returns copies of every record in order.
func (t Table) Records() []Record {
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = r.Clone()
	}
	return out
}

// Each calls fn for every record without copying. fn must not modify the record.
func (t Table) Each(fn func(i int, r Record)) {
	for i, r := range t.records {
		fn(i, r)
	}
}

// Dedupe returns the table with field-wise identical records collapsed,
// keeping the first occurrence of each.
func (t Table) Dedupe() Table {
	seen := make(map[string]struct{}, len(t.records))
	out := NewTableWithColumns(t.columns)
	for _, r := range t.records {
		fp := r.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out.append(r)
	}
	return out
}

// Filter returns the records for which keep returns true.
func (t Table) Filter(keep func(Record) bool) Table {
	out := NewTableWithColumns(t.columns)
	for _, r := range t.records {
		if keep(r) {
			out.append(r)
		}
	}
	return out
}

// Project keeps only the given columns. Projecting a column the table does not
// have is an error unless the table is empty.
func (t Table) Project(columns []string) (Table, error) {
	if len(t.records) > 0 {
		for _, c := range columns {
			if !t.HasColumn(c) {
				return Table{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "column %q is not present in table", c)
			}
		}
	}

	out := NewTableWithColumns(columns)
	for _, r := range t.records {
		projected := make(Record, len(columns))
		for _, c := range columns {
			if v, ok := r[c]; ok {
				projected[c] = v
			}
		}
		out.append(projected)
	}
	return out, nil
}

// Rename returns the table with fields renamed according to aliases (old -> new).
// A renamed field overwrites a field that already carries the new name.
func (t Table) Rename(aliases map[string]string) Table {
	if len(aliases) == 0 {
		return t
	}

	columns := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if to, ok := aliases[c]; ok {
			c = to
		}
		columns = append(columns, c)
	}

	out := NewTableWithColumns(columns)
	for _, r := range t.records {
		renamed := make(Record, len(r))
		for k, v := range r {
			if _, ok := aliases[k]; !ok {
				renamed[k] = v
			}
		}
		for k, v := range r {
			if to, ok := aliases[k]; ok {
				renamed[to] = v
			}
		}
		out.append(renamed)
	}
	return out
}

// Normalize returns the table with every value normalized and nulls dropped.
func (t Table) Normalize() Table {
	out := NewTableWithColumns(t.columns)
	for _, r := range t.records {
		out.append(NormalizeRecord(r))
	}
	return out
}

type tableJSON struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// MarshalJSON encodes the table with its column order.
func (t Table) MarshalJSON() ([]byte, error) {
	records := t.records
	if records == nil {
		records = []Record{}
	}
	columns := t.columns
	if columns == nil {
		columns = []string{}
	}
	return json.Marshal(tableJSON{Columns: columns, Records: records})
}

// UnmarshalJSON decodes a table written by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = NewTableWithColumns(raw.Columns, raw.Records...)
	return nil
}
