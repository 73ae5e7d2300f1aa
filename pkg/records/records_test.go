package records

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/categorisation/pkg/catalog"
)

var trxFields = []string{"type", "description", "amount"}

func TestParseCSVSkipsHeaderAndBlankRows(t *testing.T) {
	data := []byte("type;description;amount\nDEBIT;Coffee;3.50\n;;\nCREDIT;Salary;2000\n")

	recs, err := ParseCSV(data, trxFields, ';')
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"type": "DEBIT", "description": "Coffee", "amount": "3.50"}, recs[0])
	assert.Equal(t, "Salary", recs[1]["description"])
}

func TestParseCSVShortRowsLeaveFieldsMissing(t *testing.T) {
	recs, err := ParseCSV([]byte("h1,h2,h3\nDEBIT,Coffee\n"), trxFields, ',')
	require.NoError(t, err)
	require.Len(t, recs, 1)
	_, ok := recs[0].Get("amount")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	in := "type;description;amount\nDEBIT;Coffee;3.50\nDEBIT;\"Fish; chips\";12,00\nCREDIT;\"Say \"\"hi\"\"\";1\n"

	recs, err := ParseCSV([]byte(in), trxFields, ';')
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteCSV(&out, recs, trxFields, ';'))
	assert.Equal(t, in, out.String())
}

func TestRoundTripKeepsSpacesAndLineEndings(t *testing.T) {
	tests := map[string]string{
		"leading and trailing spaces": "type;description;amount\nDEBIT; Coffee;3.50 \n",
		"crlf":                        "type;description;amount\r\nDEBIT;Coffee;3.50\r\nCREDIT;\"Salary;March\";2000\r\n",
		"crlf quoted line break":      "type;description;amount\r\nDEBIT;\"two\r\nlines\";1\r\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			recs, err := ParseCSV([]byte(in), trxFields, ';')
			require.NoError(t, err)

			var out bytes.Buffer
			require.NoError(t, WriteDialect(&out, recs, trxFields, DetectDialect([]byte(in), ';')))
			assert.Equal(t, in, out.String())
		})
	}
}

func TestDetectDialect(t *testing.T) {
	assert.True(t, DetectDialect([]byte("a;b\r\n1;2\r\n"), ';').CRLF)
	assert.False(t, DetectDialect([]byte("a;b\n1;2\n"), ';').CRLF)
	assert.False(t, DetectDialect([]byte("a;b"), ';').CRLF)
	assert.Equal(t, ',', DetectDialect(nil, ',').Delimiter)
}

func TestRoundTripCRLFThroughFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "users.csv")
	out := filepath.Join(dir, "users-copy.csv")
	content := "external_user_id;label;market;locale\r\nu1; Alice ;SE;sv_SE\r\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o600))

	recs, dialect, err := ReadFileDialect(in, catalog.Users.Input, ';')
	require.NoError(t, err)
	assert.True(t, dialect.CRLF)
	require.NoError(t, WriteFileDialect(out, recs, catalog.Users.Input, dialect))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, string(written))
}

func TestRoundTripThroughFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "users.csv")
	out := filepath.Join(dir, "users-copy.csv")
	content := "external_user_id;label;market;locale\nu1;Alice;SE;sv_SE\nu2;;GB;en_GB\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o600))

	recs, err := ReadFile(in, catalog.Users.Input, ';')
	require.NoError(t, err)
	require.NoError(t, WriteFile(out, recs, catalog.Users.Input, ';'))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, string(written))
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{"transactions": [
		{"type": "DEBIT", "description": "Coffee", "amount": 3.5, "ignored": true},
		{"type": "CREDIT", "description": null, "amount": "10"}
	]}`)

	recs, err := Parse(data, "in.json", trxFields, ';')
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"type": "DEBIT", "description": "Coffee", "amount": "3.5"}, recs[0])
	assert.Equal(t, Record{"type": "CREDIT", "amount": "10"}, recs[1])
}

func TestWriteFileJSONEndsWithNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	recs := []Record{{"type": "DEBIT", "description": "Coffee", "amount": "3.50", "extra": "x"}}

	require.NoError(t, WriteFile(path, recs, trxFields, ';'))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[{"amount":"3.50","description":"Coffee","type":"DEBIT"}]}`+"\n", string(data))
}

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{"a.CSV": CSV, "a.txt": CSV, "a.data": CSV, "a.json": JSON, "a.xls": XLS, "a.xlsx": XLSX} {
		got, err := DetectFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := DetectFormat("a.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode(t *testing.T) {
	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("type;description\n")...)
	out, err := Decode(bom)
	require.NoError(t, err)
	assert.Equal(t, "type;description\n", string(out))

	// "Café" in Windows-1252
	out, err = Decode([]byte{'C', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "Café", string(out))

	utf16 := []byte{0xFF, 0xFE, 'o', 0, 'k', 0}
	out, err = Decode(utf16)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"type", "description", "amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"DEBIT", "Coffee", "3.50"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	recs, err := Parse(buf.Bytes(), "in.xlsx", trxFields, ';')
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{"type": "DEBIT", "description": "Coffee", "amount": "3.50"}, recs[0])
}

func TestFromObject(t *testing.T) {
	obj := map[string]any{"category": "Food", "probability": 0.93, "low_confidence": false, "tags": []any{"a"}, "none": nil}

	rec := FromObject(obj, []string{"category", "probability", "low_confidence", "missing"})
	assert.Equal(t, Record{"category": "Food", "probability": "0.93", "low_confidence": "false"}, rec)

	all := FromObject(obj, nil)
	assert.Equal(t, `["a"]`, all["tags"])
	assert.Equal(t, "", all["none"])
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(path, []byte("id;label;market;locale\nu1;A;SE;sv_SE\n"), 0o600))

	src := NewFileSource(';')
	src.Bind(catalog.UserEntity, path)
	assert.Equal(t, path, src.Path(catalog.UserEntity))

	recs, err := src.Records(catalog.UserEntity)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0]["external_user_id"])

	_, err = src.Records(catalog.AccountEntity)
	assert.ErrorContains(t, err, "no data source bound")

	src.Bind(catalog.UserEntity, "")
	assert.Empty(t, src.Path(catalog.UserEntity))
}
