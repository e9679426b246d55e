package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contents(drafts []domain.ChunkDraft) []string {
	out := make([]string, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.Content)
	}
	return out
}

func TestFlatten_PathsAndOrder(t *testing.T) {
	root := Mapping(
		Field{Key: "math", Value: Mapping(
			Field{Key: "strategies", Value: Sequence(
				Scalar(domain.StringValue("break down")),
				Scalar(domain.IntValue(2)),
			)},
		)},
		Field{Key: "active", Value: Scalar(domain.BoolValue(true))},
		Field{Key: "notes", Value: Scalar(domain.NullValue())},
	)

	leaves := Flatten(root)

	require.Len(t, leaves, 4)
	assert.Equal(t, "math.strategies[0]: break down", leaves[0].Content())
	assert.Equal(t, "math.strategies[1]: 2", leaves[1].Content())
	assert.Equal(t, "active: true", leaves[2].Content())
	assert.Equal(t, "notes: null", leaves[3].Content())
}

func TestFlatten_OneLeafPerScalar(t *testing.T) {
	roots := []*Node{
		Scalar(domain.StringValue("alone")),
		Sequence(),
		Mapping(),
		Sequence(Sequence(Scalar(domain.IntValue(1)), Scalar(domain.IntValue(2))), Mapping(
			Field{Key: "k", Value: Scalar(domain.FloatValue(0.5))},
		)),
	}

	for _, root := range roots {
		assert.Equal(t, CountScalars(root), len(Flatten(root)))
	}
}

func TestFlatten_RootScalarHasEmptyPath(t *testing.T) {
	leaves := Flatten(Scalar(domain.StringValue("plain")))

	require.Len(t, leaves, 1)
	assert.Equal(t, "", leaves[0].Path)
	assert.Equal(t, "plain", leaves[0].Content())
}

func TestParseJSON_ScalarKinds(t *testing.T) {
	root, err := ParseJSON([]byte(`{"i": 10, "f": 1.5, "e": 1e3, "s": "x", "b": false, "n": null}`))
	require.NoError(t, err)

	leaves := Flatten(root)
	require.Len(t, leaves, 6)
	assert.Equal(t, domain.IntValue(10), leaves[0].Value)
	assert.Equal(t, domain.FloatValue(1.5), leaves[1].Value)
	assert.Equal(t, domain.FloatValue(1000), leaves[2].Value)
	assert.Equal(t, domain.StringValue("x"), leaves[3].Value)
	assert.Equal(t, domain.BoolValue(false), leaves[4].Value)
	assert.Equal(t, domain.NullValue(), leaves[5].Value)
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseJSON([]byte("   "))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestJSONExtractor_Extract(t *testing.T) {
	e := &JSONExtractor{}
	data := []byte(`{"strategies": {"math": ["break down", "step by step"]}, "grade": 2}`)

	drafts, err := e.Extract(context.Background(), Source{Name: "kb.json", Data: data})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"strategies.math[0]: break down",
		"strategies.math[1]: step by step",
		"grade: 2",
	}, contents(drafts))
	assert.Equal(t, "strategies.math[1]", drafts[1].Metadata.GetString("path"))
	assert.Equal(t, domain.ChunkTypeJSON, drafts[0].ChunkType)
}

func TestParseYAML_MultiDocumentAndAliases(t *testing.T) {
	data := []byte("a: &x 1\nb: *x\n---\nlist:\n  - true\n  - ~\n  - 1.5\n")

	roots, err := ParseYAML(data)
	require.NoError(t, err)
	require.Len(t, roots, 2)

	first := Flatten(roots[0])
	require.Len(t, first, 2)
	assert.Equal(t, domain.IntValue(1), first[0].Value)
	assert.Equal(t, domain.IntValue(1), first[1].Value)

	second := Flatten(roots[1])
	require.Len(t, second, 3)
	assert.Equal(t, "list[0]: true", second[0].Content())
	assert.Equal(t, "list[1]: null", second[1].Content())
	assert.Equal(t, "list[2]: 1.5", second[2].Content())
}

// aliasBomb nests levels of ten aliases each, expanding to 10^levels leaves.
func aliasBomb(levels int) []byte {
	var b strings.Builder
	b.WriteString("l0: &l0 [x, x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i <= levels; i++ {
		refs := strings.TrimSuffix(strings.Repeat(fmt.Sprintf("*l%d, ", i-1), 10), ", ")
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, refs)
	}
	return []byte(b.String())
}

func TestParseYAML_AliasExpansionLimited(t *testing.T) {
	data := aliasBomb(8)
	require.Less(t, len(data), 1024)

	_, err := ParseYAML(data)

	assert.ErrorIs(t, err, ErrYAMLTooLarge)
}

func TestParseYAML_SmallAliasTreeAllowed(t *testing.T) {
	roots, err := ParseYAML(aliasBomb(2))

	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, 10+100+1000, len(Flatten(roots[0])))
}

func TestRegistry_Extract_AliasBombIsExtractionError(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Extract(context.Background(), Source{Name: "bomb.yaml", Data: aliasBomb(8)})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeExtraction))
	assert.ErrorIs(t, err, ErrYAMLTooLarge)
}

func TestStructuredExtractor_NumbersKeepSourceText(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		drafts, err := (&JSONExtractor{}).Extract(context.Background(), Source{
			Name: "n.json",
			Data: []byte(`{"ratio": 1.0, "sci": 1e2, "id": 12345678901234567890, "n": 7}`),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ratio: 1.0", "sci: 1e2", "id: 12345678901234567890", "n: 7"}, contents(drafts))
	})

	t.Run("yaml", func(t *testing.T) {
		roots, err := ParseYAML([]byte("ratio: 1.0\nsci: 1e+2\nhex: 0x1F\n"))
		require.NoError(t, err)
		leaves := Flatten(roots[0])
		require.Len(t, leaves, 3)
		assert.Equal(t, "ratio: 1.0", leaves[0].Content())
		assert.Equal(t, domain.FloatValue(1), leaves[0].Value)
		assert.Equal(t, "sci: 1e+2", leaves[1].Content())
		assert.Equal(t, "hex: 0x1F", leaves[2].Content())
		assert.Equal(t, domain.IntValue(31), leaves[2].Value)
	})
}

func TestParseYAML_Invalid(t *testing.T) {
	_, err := ParseYAML([]byte("a: [1, 2\n"))
	assert.Error(t, err)
}

func TestYAMLExtractor_Extract(t *testing.T) {
	e := &YAMLExtractor{}
	data := []byte("behavior:\n  attention:\n    - let's focus\n    - watch carefully\n")

	drafts, err := e.Extract(context.Background(), Source{Name: "kb.yml", Data: data})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"behavior.attention[0]: let's focus",
		"behavior.attention[1]: watch carefully",
	}, contents(drafts))
	assert.Equal(t, domain.ChunkTypeYAML, drafts[0].ChunkType)
}

func TestStructuredExtractor_UsesParser(t *testing.T) {
	e := &StructuredExtractor{Parse: ParseYAML}

	drafts, err := e.Extract(context.Background(), Source{Name: "seed", Data: []byte("k: v\n")})

	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "k: v", drafts[0].Content)
	assert.Equal(t, domain.ChunkTypeStructured, drafts[0].ChunkType)
}
