// Package csvsource reads source extracts from a directory of CSV files:
// customers.csv, products.csv and sales.csv. Headers name the columns (see the
// source package column lists); column order in the file does not matter.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dwh/internal/source"
)

const (
	CustomersFile = "customers.csv"
	ProductsFile  = "products.csv"
	SalesFile     = "sales.csv"
)

func init() {
	source.Register("csv", func(_ context.Context, cfg source.Config) (source.Reader, error) {
		opt, err := ParseOptions(cfg.Params)
		if err != nil {
			return nil, err
		}
		return Open(cfg.Path, opt)
	})
}

// Options tunes CSV parsing.
type Options struct {
	Comma      rune              // default ','
	LazyQuotes bool              // tolerate bare quotes in unquoted fields
	HeaderMap  map[string]string // raw header -> column name
}

// Reader implements source.Reader over a directory of extracts.
type Reader struct {
	dir string
	opt Options
}

// ParseOptions reads Options from URL query form, e.g.
// "comma=;&lazy_quotes=true&header.Qty=order_qty". comma must be a single
// character; each header.<raw> key maps a raw header name to a column.
func ParseOptions(params string) (Options, error) {
	var opt Options
	params = strings.TrimSpace(params)
	if params == "" {
		return opt, nil
	}
	q, err := url.ParseQuery(params)
	if err != nil {
		return opt, fmt.Errorf("csvsource: params: %w", err)
	}
	for key, vals := range q {
		v := vals[len(vals)-1]
		switch {
		case key == "comma":
			r := []rune(v)
			if len(r) != 1 {
				return opt, fmt.Errorf("csvsource: comma must be one character, got %q", v)
			}
			opt.Comma = r[0]
		case key == "lazy_quotes":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opt, fmt.Errorf("csvsource: lazy_quotes: %w", err)
			}
			opt.LazyQuotes = b
		case strings.HasPrefix(key, "header."):
			if opt.HeaderMap == nil {
				opt.HeaderMap = map[string]string{}
			}
			opt.HeaderMap[strings.TrimPrefix(key, "header.")] = v
		default:
			return opt, fmt.Errorf("csvsource: unknown param %q", key)
		}
	}
	return opt, nil
}

// Open checks that dir holds every extract and returns a Reader.
func Open(dir string, opt Options) (*Reader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csvsource: empty directory path")
	}
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	r := &Reader{dir: dir, opt: opt}
	if err := r.Ping(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Ping reports a missing extract file.
func (r *Reader) Ping(context.Context) error {
	for _, name := range []string{CustomersFile, ProductsFile, SalesFile} {
		if _, err := os.Stat(filepath.Join(r.dir, name)); err != nil {
			return fmt.Errorf("csvsource: %w", err)
		}
	}
	return nil
}

func (r *Reader) Close() error { return nil }

func (r *Reader) Customers(ctx context.Context) ([]source.Row, error) {
	return r.readFile(ctx, CustomersFile, source.CustomerColumns)
}

func (r *Reader) Products(ctx context.Context) ([]source.Row, error) {
	return r.readFile(ctx, ProductsFile, source.ProductColumns)
}

func (r *Reader) SalesLines(ctx context.Context) ([]source.Row, error) {
	return r.readFile(ctx, SalesFile, source.SalesColumns)
}

// DueDates derives the distinct due dates from sales.csv, ascending by text.
// Values are returned raw; the warehouse normalizes them to calendar dates.
func (r *Reader) DueDates(ctx context.Context) ([]source.Row, error) {
	rows, err := r.readFile(ctx, SalesFile, []string{"due_date"})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	var dates []string
	for _, row := range rows {
		s, ok := row.V[0].(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		dates = append(dates, s)
	}
	sort.Strings(dates)

	out := make([]source.Row, len(dates))
	for i, d := range dates {
		out[i] = source.Row{V: []any{d}, Line: i + 1}
	}
	return out, nil
}

func (r *Reader) readFile(ctx context.Context, name string, columns []string) ([]source.Row, error) {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return nil, fmt.Errorf("csvsource: %w", err)
	}
	defer f.Close()

	rows, err := ReadRows(ctx, f, columns, r.opt)
	if err != nil {
		return nil, fmt.Errorf("csvsource: %s: %w", name, err)
	}
	return rows, nil
}

// ReadRows parses CSV with a header row into rows aligned to columns.
//
// Header names are matched after trimming, dropping a UTF-8 BOM, lower-casing
// and replacing spaces with underscores, unless HeaderMap maps the raw name.
// Fields are trimmed; empty fields become nil. A requested column missing from
// the header is an error.
func ReadRows(ctx context.Context, src io.Reader, columns []string, opt Options) ([]source.Row, error) {
	var line int

	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := opt.HeaderMap[h]; ok {
			h = mapped
		} else {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		srcToIdx[h] = i
	}

	colIx := make([]int, len(columns))
	for t, target := range columns {
		si, ok := srcToIdx[target]
		if !ok {
			return nil, fmt.Errorf("header has no column %q", target)
		}
		colIx[t] = si
	}

	var out []source.Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := readRec()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := source.Row{V: make([]any, len(columns)), Line: line}
		for t, si := range colIx {
			if si >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[si]); v != "" {
				row.V[t] = v
			}
		}
		out = append(out, row)
	}
}
