package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dwh/internal/source"
)

func TestReadRows_AlignsHeaderAndNormalizesFields(t *testing.T) {
	t.Parallel()

	in := "\uFEFFProduct ID, Name ,Color,size,subcategory_name,category_name\n" +
		"10, Widget ,Red,,Sub,Cat\n"

	rows, err := ReadRows(context.Background(), strings.NewReader(in), source.ProductColumns, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].Line)
	require.Equal(t, []any{"10", "Widget", "Red", nil, "Sub", "Cat"}, rows[0].V)
}

func TestReadRows_HeaderMapAndComma(t *testing.T) {
	t.Parallel()

	in := "Qty;due\n3;2024-01-15\n"
	rows, err := ReadRows(context.Background(), strings.NewReader(in),
		[]string{"order_qty", "due_date"},
		Options{Comma: ';', HeaderMap: map[string]string{"Qty": "order_qty", "due": "due_date"}})
	require.NoError(t, err)
	require.Equal(t, []any{"3", "2024-01-15"}, rows[0].V)
}

func TestReadRows_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadRows(context.Background(), strings.NewReader(""), []string{"a"}, Options{})
	require.ErrorContains(t, err, "missing header")

	_, err = ReadRows(context.Background(), strings.NewReader("a,b\n1,2\n"), []string{"c"}, Options{})
	require.ErrorContains(t, err, `"c"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadRows(ctx, strings.NewReader("a\n1\n"), []string{"a"}, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func writeExtracts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestReader_DueDatesAreDistinctAndSorted(t *testing.T) {
	t.Parallel()

	dir := writeExtracts(t, map[string]string{
		CustomersFile: strings.Join(source.CustomerColumns, ",") + "\n",
		ProductsFile:  strings.Join(source.ProductColumns, ",") + "\n",
		SalesFile: strings.Join(source.SalesColumns, ",") + "\n" +
			"1,5.00,0,2024-02-01,1,10\n" +
			"2,5.00,0,2024-01-15,1,10\n" +
			"1,5.00,0,2024-02-01,2,10\n",
	})

	r, err := Open(dir, Options{})
	require.NoError(t, err)
	defer r.Close()

	dates, err := r.DueDates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []source.Row{
		{V: []any{"2024-01-15"}, Line: 1},
		{V: []any{"2024-02-01"}, Line: 2},
	}, dates)

	lines, err := r.SalesLines(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 3)
}

func TestOpen_MissingExtract(t *testing.T) {
	t.Parallel()

	dir := writeExtracts(t, map[string]string{CustomersFile: "customer_id\n"})
	_, err := Open(dir, Options{})
	require.Error(t, err)

	_, err = Open("", Options{})
	require.Error(t, err)
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	opt, err := ParseOptions("comma=%3B&lazy_quotes=true&header.Qty=order_qty")
	require.NoError(t, err)
	require.Equal(t, Options{Comma: ';', LazyQuotes: true, HeaderMap: map[string]string{"Qty": "order_qty"}}, opt)

	opt, err = ParseOptions(" ")
	require.NoError(t, err)
	require.Equal(t, Options{}, opt)

	for _, bad := range []string{"comma=ab", "lazy_quotes=maybe", "delimiter=;", "%zz"} {
		_, err := ParseOptions(bad)
		require.Error(t, err, bad)
	}
}

func TestRegisteredReader_AppliesParams(t *testing.T) {
	t.Parallel()

	dir := writeExtracts(t, map[string]string{
		CustomersFile: strings.Join(source.CustomerColumns, ";") + "\n",
		ProductsFile:  "product_id;name;color;size;subcategory_name;category_name\n" + `10;Widget "Pro";Red;;Sub;Cat` + "\n",
		SalesFile:     strings.Join(source.SalesColumns, ";") + "\n",
	})

	r, err := source.Open(context.Background(), source.Config{Kind: "csv", Path: dir, Params: "comma=%3B&lazy_quotes=true"})
	require.NoError(t, err)
	defer r.Close()

	rows, err := r.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, `Widget "Pro"`, rows[0].V[1])

	_, err = source.Open(context.Background(), source.Config{Kind: "csv", Path: dir, Params: "comma=ab"})
	require.Error(t, err)
}
