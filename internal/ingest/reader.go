// Package ingest reads field measurement sheets (CSV or XLSX) into sample
// submissions and loads them into the store.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// CSVRow is one parsed CSV record and the file line it starts on.
type CSVRow struct {
	Line   int
	Fields []string
}

// StreamCSV reads comma-separated records and sends them on the returned
// channel, header included. Fields are trimmed. Both channels are closed when
// the reader is exhausted or ctx is cancelled; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan CSVRow, <-chan error) {
	rowCh := make(chan CSVRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read csv row")
				return
			}
			line, _ := reader.FieldPos(0)
			for i, f := range record {
				record[i] = strings.TrimSpace(f)
			}

			select {
			case rowCh <- CSVRow{Line: line, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV parses a measurement sheet from r. Row errors carry the file line
// a record starts on, so quoted multi-line fields and skipped empty lines do
// not shift them.
func ReadCSV(ctx context.Context, r io.Reader) (*Sheet, error) {
	rowCh, errCh := StreamCSV(ctx, r)

	var g *grouper
	for row := range rowCh {
		if g == nil {
			var err error
			if g, err = newGrouper(row.Fields); err != nil {
				for range rowCh {
				}
				return nil, err
			}
			continue
		}
		g.add(row.Line, row.Fields)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if g == nil {
		return nil, eris.New("ingest: empty sheet")
	}
	return g.sheet(), nil
}

// ReadXLSX parses a measurement sheet from the named worksheet of an XLSX
// workbook, or the first worksheet when sheetName is empty.
func ReadXLSX(path, sheetName string) (*Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open xlsx %s", path)
	}

	var ws *xlsx.Sheet
	switch {
	case sheetName != "":
		var ok bool
		if ws, ok = f.Sheet[sheetName]; !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", sheetName)
		}
	case len(f.Sheets) == 0:
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	default:
		ws = f.Sheets[0]
	}

	var g *grouper
	for i, row := range ws.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
		}
		if g == nil {
			if g, err = newGrouper(cells); err != nil {
				return nil, err
			}
			continue
		}
		g.add(i+1, cells)
	}
	if g == nil {
		return nil, eris.New("ingest: empty sheet")
	}
	return g.sheet(), nil
}

// ReadFile picks the parser from the file extension (.csv or .xlsx).
func ReadFile(ctx context.Context, path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	case ".xlsx":
		return ReadXLSX(path, "")
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}
