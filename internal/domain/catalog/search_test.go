package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	si, err := NewSearchIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = si.Close() })

	require.NoError(t, si.IndexCourses([]Course{
		{Code: "IT101", Name: "Lập trình C", Credits: 3},
		{Code: "IT205", Name: "Cơ sở dữ liệu", Credits: 3},
		{Code: "MA101", Name: "Toán cao cấp", Credits: 4},
	}))
	return si
}

func TestSearchFindsAccentedNameFromPlainInput(t *testing.T) {
	si := newTestIndex(t)

	hits, err := si.Search("lap trinh", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "IT101", hits[0].Code)
	assert.Equal(t, "Lập trình C", hits[0].Name)
}

func TestSearchToleratesTypo(t *testing.T) {
	si := newTestIndex(t)

	hits, err := si.Search("toan cao csp", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "MA101", hits[0].Code)
}

func TestSearchNoMatch(t *testing.T) {
	si := newTestIndex(t)

	hits, err := si.Search("khi tuong thuy van", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReindexReplacesDocuments(t *testing.T) {
	si := newTestIndex(t)

	require.NoError(t, si.IndexCourses([]Course{
		{Code: "IT101", Name: "Lập trình nâng cao", Credits: 3},
	}))
	hits, err := si.Search("lap trinh nang cao", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "IT101", hits[0].Code)
}
