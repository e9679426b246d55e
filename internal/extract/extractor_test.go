package extract

import (
	"context"
	"testing"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(logging.Discard())
}

func TestRegistry_Extract_UnsupportedExtension(t *testing.T) {
	r := newTestRegistry()

	drafts, err := r.Extract(context.Background(), Source{Name: "tool.exe", Data: []byte("MZ")})

	require.NoError(t, err)
	assert.NotNil(t, drafts)
	assert.Empty(t, drafts)
	assert.False(t, r.Supports("tool.exe"))
}

func TestRegistry_Extract_ExtensionIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry()

	drafts, err := r.Extract(context.Background(), Source{Name: "NOTES.TXT", Data: []byte("hello")})

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, domain.ChunkTypeText, drafts[0].ChunkType)
	assert.Equal(t, "NOTES.TXT", drafts[0].Source)
}

func TestRegistry_Extract_CorruptFileIsExtractionError(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Extract(context.Background(), Source{Name: "broken.json", Data: []byte(`{"a": `)})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeExtraction))
	assert.Contains(t, err.Error(), "broken.json")
}

func TestRegistry_Extract_DropsBlankDrafts(t *testing.T) {
	r := newTestRegistry()

	drafts, err := r.Extract(context.Background(), Source{Name: "k.json", Data: []byte(`{"a": "  ", "b": "kept"}`)})

	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "a:", drafts[0].Content)
	assert.Equal(t, "b: kept", drafts[1].Content)
}

func TestRegistry_Extensions(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t, []string{
		".csv", ".docx", ".json", ".markdown", ".md", ".pdf", ".txt", ".xlsx", ".yaml", ".yml",
	}, r.Extensions())
}

func TestRegistry_Register_Overrides(t *testing.T) {
	r := newTestRegistry()
	r.Register(&TextExtractor{}, ".log")

	assert.True(t, r.Supports("server.log"))
	drafts, err := r.Extract(context.Background(), Source{Name: "server.log", Data: []byte("line")})
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}

func TestExtractors_EveryDraftIsValid(t *testing.T) {
	r := newTestRegistry()
	sources := []Source{
		{Name: "a.txt", Data: []byte("one\n\ntwo")},
		{Name: "b.json", Data: []byte(`{"x": [1, 2]}`)},
		{Name: "c.yaml", Data: []byte("x: y\n")},
		{Name: "d.csv", Data: []byte("h1,h2\nv1,v2\n")},
		{Name: "e.md", Data: []byte("# T\n\nbody\n")},
	}

	for _, src := range sources {
		t.Run(src.Name, func(t *testing.T) {
			drafts, err := r.Extract(context.Background(), src)
			require.NoError(t, err)
			require.NotEmpty(t, drafts)
			for _, d := range drafts {
				assert.NoError(t, d.Validate())
				assert.Equal(t, src.Name, d.Source)
			}
		})
	}
}
