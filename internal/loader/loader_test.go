package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesYAML = `
priority: [maharashtra, gujarat]
sources:
  maharashtra:
    file: maharashtra.csv
    mapping:
      identifier_columns: [CIN]
      columns:
        company_name: [CompanyName]
        status: [CompanyStatus, Status]
        authorized_capital: [AuthorizedCapital]
  gujarat:
    file: gujarat.csv
    encoding: windows-1252
    mapping:
      identifier_columns: [CIN]
      columns:
        company_name: [Company_Name]
        status: [Status]
`

func writeSources(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSources(writeSources(t, dir, sourcesYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"maharashtra", "gujarat"}, s.Priority)

	spec, ok := s.Spec("gujarat")
	require.True(t, ok)
	assert.Equal(t, "windows-1252", spec.Encoding)
	assert.Equal(t, []string{"CIN"}, spec.Mapping.IdentifierColumns)

	opts := s.DedupeOptions(true)
	assert.True(t, opts.Strict)
	assert.Equal(t, s.Priority, opts.SourcePriority)
}

func TestLoadSources_RejectsUnknownCanonicalField(t *testing.T) {
	bad := `
priority: [x]
sources:
  x:
    file: x.csv
    mapping:
      identifier_columns: [CIN]
      columns:
        director_aadhaar: [Aadhaar]
`
	_, err := LoadSources(writeSources(t, t.TempDir(), bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "director_aadhaar")
}

func TestLoadSources_RejectsMissingIdentifierColumns(t *testing.T) {
	bad := `
priority: [x]
sources:
  x:
    file: x.csv
    mapping:
      columns:
        company_name: [Name]
`
	_, err := LoadSources(writeSources(t, t.TempDir(), bad))
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	in := "CIN , CompanyName,Status\nID1,Acme Ltd,Active\nID2,Short Row\n"

	rows, err := ReadCSV(strings.NewReader(in), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Acme Ltd", rows[0]["CompanyName"])
	assert.Equal(t, "ID1", rows[0]["CIN"], "header cells must be trimmed")
	assert.Equal(t, "", rows[1]["Status"], "short rows pad with empty cells")
}

func TestReadCSV_Windows1252(t *testing.T) {
	// 0xE9 is é in windows-1252; invalid as a standalone UTF-8 byte.
	in := "CIN,CompanyName\nID1,Caf\xe9 Ltd\n"

	rows, err := ReadCSV(strings.NewReader(in), "windows-1252")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café Ltd", rows[0]["CompanyName"])
}

func TestReadCSV_EmptyInput(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLoader_Batches(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSources(writeSources(t, dir, sourcesYAML))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "maharashtra.csv"),
		[]byte("CIN,CompanyName,CompanyStatus\nID1,ACME,Active\nID2,BETA,Active\n"), 0o644))
	// gujarat.csv intentionally missing.

	batches, err := New(s, dir, nil).Batches(context.Background())
	require.NoError(t, err)

	require.Len(t, batches, 1, "missing source file must be skipped, not fatal")
	assert.Equal(t, "maharashtra", batches[0].Tag)
	assert.Len(t, batches[0].Rows, 2)
	assert.Equal(t, []string{"CIN"}, batches[0].Mapping.IdentifierColumns)
}

func TestLoader_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	yml := `
priority: [x]
sources:
  x:
    file: x.parquet
    format: parquet
    mapping:
      identifier_columns: [CIN]
`
	s, err := LoadSources(writeSources(t, dir, yml))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.parquet"), []byte("x"), 0o644))

	_, err = New(s, dir, nil).Batches(context.Background())
	assert.Error(t, err)
}
