package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Schema declares the columns a CSV upload must carry. Columns not listed
// are kept as text.
type Schema struct {
	DateColumn     string
	NumericColumns []string
	Required       []string
}

// SalesSchema matches the sales export: date, product, region,
// sales_channel, sales_amount.
var SalesSchema = Schema{
	DateColumn:     "date",
	NumericColumns: []string{"sales_amount"},
	Required:       []string{"date", "product", "region", "sales_channel", "sales_amount"},
}

// SupportSchema matches the support ticket export.
var SupportSchema = Schema{
	DateColumn:     "date",
	NumericColumns: []string{"resolution_time", "customer_satisfaction"},
	Required:       []string{"ticket_id", "date", "category", "resolution_time", "customer_satisfaction"},
}

// ReadCSV parses delimited text into a Table. Header names are normalised to
// snake_case. Every value in the date column must parse and every value in a
// numeric column must be a finite number; a bad cell fails the whole load.
func ReadCSV(name string, r io.Reader, sch Schema) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: %s: read header", name)
	}

	numeric := make(map[string]bool, len(sch.NumericColumns))
	for _, c := range sch.NumericColumns {
		numeric[c] = true
	}

	cols := make([]Column, len(header))
	for i, h := range header {
		key := toSnakeCase(h)
		kind := KindText
		switch {
		case key == sch.DateColumn:
			kind = KindDate
		case numeric[key]:
			kind = KindNumber
		}
		cols[i] = Column{Name: key, Kind: kind}
	}

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, eris.Wrapf(ErrInvalidTable, "%s: %v", name, err)
			}
			return nil, eris.Wrapf(err, "dataset: %s: read rows", name)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}

	t, err := New(name, cols, rows)
	if err != nil {
		return nil, err
	}
	for _, req := range sch.Required {
		if !t.Has(req) {
			return nil, eris.Wrapf(ErrInvalidTable, "%s: missing column %q", name, req)
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	for _, c := range t.columns {
		for row := range t.rows {
			switch c.Kind {
			case KindDate:
				if _, err := t.Date(row, c.Name); err != nil {
					return err
				}
			case KindNumber:
				if _, err := t.Float(row, c.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// toSnakeCase converts "Sales Amount" to "sales_amount".
func toSnakeCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
