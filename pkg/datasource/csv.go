package datasource

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/Ramsey-B/clover/pkg/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV parses a CSV document with a header row into a normalized table.
// Rows shorter than the header are padded with nulls.
func ReadCSV(r io.Reader) (models.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return models.NewTable(), nil
	}
	if err != nil {
		return models.Table{}, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = string(bytes.TrimPrefix([]byte(h), utf8BOM))
	}

	var records []models.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Table{}, fmt.Errorf("read row %d: %w", len(records)+2, err)
		}
		if len(row) > len(columns) {
			return models.Table{}, fmt.Errorf("row %d has %d fields, header has %d", len(records)+2, len(row), len(columns))
		}
		raw := make(map[string]string, len(row))
		for i, v := range row {
			raw[columns[i]] = v
		}
		records = append(records, models.NormalizeRecord(raw))
	}

	return models.NewTableWithColumns(columns, records...), nil
}

// WriteCSV writes the table with a header row. Null values are written as
// empty fields.
func WriteCSV(w io.Writer, table models.Table) error {
	writer := csv.NewWriter(w)
	columns := table.Columns()
	if err := writer.Write(columns); err != nil {
		return err
	}

	row := make([]string, len(columns))
	var writeErr error
	table.Each(func(_ int, r models.Record) {
		if writeErr != nil {
			return
		}
		for i, c := range columns {
			row[i] = r[c]
		}
		writeErr = writer.Write(row)
	})
	if writeErr != nil {
		return writeErr
	}

	writer.Flush()
	return writer.Error()
}
