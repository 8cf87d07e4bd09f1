package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyglot/internal/config"
	"polyglot/internal/naming"
)

func mustCatalog(t *testing.T, yml string) *Catalog {
	t.Helper()
	cfg, err := config.Parse([]byte(yml))
	require.NoError(t, err)
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

const catalogYAML = `settings:
  acronym_scheme: two_letter_limit
projects:
  fileio:
    words: ["file", "io"]
    acronyms: ["IO"]
    requires_parameters: true
  jsonparse:
    words: ["json", "parse"]
    acronyms: ["json"]
    acronym_scheme: upper
  helloworld:
    words: ["hello", "world"]
    tests: ["test_hello_world"]
`

func TestNew(t *testing.T) {
	c := mustCatalog(t, catalogYAML)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"fileio", "helloworld", "jsonparse"}, c.IDs())
	assert.Equal(t, naming.PolicyTwoLetterLimit, c.DefaultPolicy())

	fileio, err := c.Lookup("fileio")
	require.NoError(t, err)
	assert.True(t, fileio.RequiresParameters)
	assert.Equal(t, naming.PolicyTwoLetterLimit, fileio.AcronymPolicy, "inherits catalog default")

	jp, ok := c.TryLookup("jsonparse")
	require.True(t, ok)
	assert.Equal(t, naming.PolicyUpper, jp.AcronymPolicy, "project policy wins")
}

func TestNew_DefaultPolicyIsUpper(t *testing.T) {
	c := mustCatalog(t, "projects:\n  fileio:\n    words: [file, io]\n    acronyms: [io]\n")
	name, err := c.FilenameFor("fileio", naming.SchemeHyphen)
	require.NoError(t, err)
	assert.Equal(t, "file-IO", name)
}

func TestNew_MissingWords(t *testing.T) {
	cfg, err := config.Parse([]byte("projects:\n  broken:\n    acronyms: [io]\n"))
	require.NoError(t, err)
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_EmptyCatalog(t *testing.T) {
	c := mustCatalog(t, "settings:\n  source_root: .\n")
	assert.Zero(t, c.Len())
	assert.Empty(t, c.IDs())

	_, err := c.Lookup("helloworld")
	assert.ErrorIs(t, err, ErrUnknownProject)

	c, err = New(nil)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestLookupAndContains(t *testing.T) {
	c := mustCatalog(t, catalogYAML)

	_, err := c.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownProject)

	_, ok := c.TryLookup("nope")
	assert.False(t, ok)

	assert.True(t, c.Contains("FileIO"))
	assert.False(t, c.Contains("file-io"))

	id, ok := c.Canonical("HelloWorld")
	assert.True(t, ok)
	assert.Equal(t, "helloworld", id)
}

func TestFilenameAndDisplay(t *testing.T) {
	c := mustCatalog(t, catalogYAML)

	tests := []struct {
		id     string
		scheme naming.Scheme
		want   string
	}{
		{"fileio", naming.SchemeHyphen, "file-io"},
		{"fileio", naming.SchemePascal, "FileIO"},
		{"fileio", naming.SchemeCamel, "fileIO"},
		{"jsonparse", naming.SchemePascal, "JSONParse"},
		{"jsonparse", naming.SchemeUnderscore, "JSON_parse"},
		{"helloworld", naming.SchemeLower, "helloworld"},
	}
	for _, tt := range tests {
		t.Run(tt.id+"/"+string(tt.scheme), func(t *testing.T) {
			got, err := c.FilenameFor(tt.id, tt.scheme)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	name, err := c.DisplayName("fileio")
	require.NoError(t, err)
	assert.Equal(t, "File Io", name)

	name, err = c.DisplayName("jsonparse")
	require.NoError(t, err)
	assert.Equal(t, "JSON Parse", name)

	_, err = c.FilenameFor("missing", naming.SchemeHyphen)
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestTestNames(t *testing.T) {
	c := mustCatalog(t, catalogYAML)

	hw, _ := c.TryLookup("helloworld")
	assert.Equal(t, []string{"test_hello_world"}, hw.TestNames("helloworld"))

	fio, _ := c.TryLookup("fileio")
	assert.Equal(t, []string{"test_fileio"}, fio.TestNames("fileio"))
}

func TestAllIsCopy(t *testing.T) {
	c := mustCatalog(t, catalogYAML)
	all := c.All()
	delete(all, "fileio")
	assert.True(t, c.Contains("fileio"))
}
