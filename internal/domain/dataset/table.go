package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
)

// Kind is the logical type of a column.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
)

// Column describes one column of a Table.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Table is an immutable, named, in-memory relation. Cells are kept as the
// trimmed source text; typed accessors parse on demand.
type Table struct {
	name    string
	columns []Column
	index   map[string]int
	rows    [][]string
}

// ErrInvalidTable is returned when rows do not fit the declared columns.
var ErrInvalidTable = errors.New("invalid table")

// New builds a Table. Rows are copied, so later changes to the caller's
// slices are not visible through the Table.
func New(name string, columns []Column, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, eris.Wrapf(ErrInvalidTable, "%s: no columns", name)
	}
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, eris.Wrapf(ErrInvalidTable, "%s: column %d has no name", name, i)
		}
		if _, dup := idx[c.Name]; dup {
			return nil, eris.Wrapf(ErrInvalidTable, "%s: duplicate column %q", name, c.Name)
		}
		idx[c.Name] = i
	}

	cp := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, eris.Wrapf(ErrInvalidTable, "%s: row %d has %d fields, want %d", name, i, len(r), len(columns))
		}
		cp[i] = append([]string(nil), r...)
	}

	cols := append([]Column(nil), columns...)
	return &Table{name: name, columns: cols, index: idx, rows: cp}, nil
}

func (t *Table) Name() string { return t.name }

// Columns returns a copy of the column descriptors.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the table has a column with the given name.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Value returns the raw cell text.
func (t *Table) Value(row int, col string) (string, error) {
	i, ok := t.index[col]
	if !ok {
		return "", eris.Wrapf(ErrInvalidTable, "%s: unknown column %q", t.name, col)
	}
	if row < 0 || row >= len(t.rows) {
		return "", eris.Wrapf(ErrInvalidTable, "%s: row %d out of range", t.name, row)
	}
	return t.rows[row][i], nil
}

// Float parses the cell as a finite number. Empty and non-numeric cells are
// errors, never coerced to zero.
func (t *Table) Float(row int, col string) (float64, error) {
	v, err := t.Value(row, col)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, eris.Wrapf(ErrInvalidTable, "%s: row %d column %q is missing", t.name, row, col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Wrapf(ErrInvalidTable, "%s: row %d column %q is not numeric: %q", t.name, row, col, v)
	}
	return f, nil
}

// Date parses the cell as a calendar date.
func (t *Table) Date(row int, col string) (time.Time, error) {
	v, err := t.Value(row, col)
	if err != nil {
		return time.Time{}, err
	}
	d, err := ParseDate(v)
	if err != nil {
		return time.Time{}, eris.Wrapf(ErrInvalidTable, "%s: row %d column %q: %v", t.name, row, col, err)
	}
	return d, nil
}

// Head returns a new Table with at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	return t.slice(0, n)
}

// Tail returns a new Table with at most the last n rows.
func (t *Table) Tail(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	return t.slice(len(t.rows)-n, len(t.rows))
}

func (t *Table) slice(from, to int) *Table {
	rows := make([][]string, 0, to-from)
	for _, r := range t.rows[from:to] {
		rows = append(rows, append([]string(nil), r...))
	}
	return &Table{name: t.name, columns: t.columns, index: t.index, rows: rows}
}

// WriteCSV writes the header and all rows as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "dataset: write csv header")
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return eris.Wrap(err, "dataset: write csv rows")
	}
	return nil
}

// Render formats the table as right-aligned fixed-width text without a row
// index, the shape language models see most often for dataframe samples.
func (t *Table) Render() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range t.columns {
		fmt.Fprintf(tw, "%s\t", c.Name)
	}
	fmt.Fprintln(tw)
	for _, r := range t.rows {
		for _, v := range r {
			fmt.Fprintf(tw, "%s\t", v)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// ParseDate accepts the date layouts seen in exported spreadsheets and
// truncates the result to the UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			y, m, day := d.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
