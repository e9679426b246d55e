package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/coachkb/internal/config"
	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/openai"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:            "error",
		LogFormat:           "text",
		StoreDriver:         config.StoreDriverSQLite,
		SQLitePath:          filepath.Join(t.TempDir(), "coachkb.db"),
		EmbeddingProvider:   config.EmbeddingProviderHash,
		EmbeddingDimensions: 64,
		IngestConcurrency:   2,
		EvaluatorSeed:       7,
		SearchTopK:          3,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := newApp(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: config.EmbeddingProviderHash, EmbeddingDimensions: 32}
	p := newProvider(cfg)
	assert.IsType(t, &embedding.Hasher{}, p)
	assert.Equal(t, 32, p.Dimension())

	cfg.EmbeddingCacheTTL = time.Minute
	assert.IsType(t, &embedding.Cached{}, newProvider(cfg))

	cfg = &config.Config{
		EmbeddingProvider:   config.EmbeddingProviderOpenAI,
		EmbeddingDimensions: 256,
		OpenAIAPIKey:        "sk-test",
	}
	p = newProvider(cfg)
	assert.IsType(t, &openai.Client{}, p)
	assert.Equal(t, 256, p.Dimension())
}

func TestNewApp_SQLite(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, 64, app.Store.Dimension())
	assert.NotNil(t, app.Retriever)
	assert.NotNil(t, app.Evaluator)
	assert.NotNil(t, app.Ingestor)

	stats, err := app.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestApp_S3NotConfigured(t *testing.T) {
	app := newTestApp(t)

	_, err := app.S3(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 is not configured")
}

func TestSeedStore_Idempotent(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	added, err := seedStore(ctx, app)
	require.NoError(t, err)
	assert.Positive(t, added)

	again, err := seedStore(ctx, app)
	require.NoError(t, err)
	assert.Zero(t, again)

	sources, err := app.Store.Sources(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"seed://knowledge", "seed://catalog"}, sources)
}

func TestApp_IngestSearchEvaluate(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math.txt"),
		[]byte("Teaching strategies for word problems in math: break down the steps and draw a picture."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.bin"), []byte{0x00, 0x01}, 0o644))

	files, err := service.NewWalker(nil, nil).Collect(dir)
	require.NoError(t, err)

	report, err := app.Ingestor.Ingest(ctx, files...)
	require.NoError(t, err)
	assert.Positive(t, report.Chunks)
	assert.Zero(t, report.Failed())

	matches, err := app.Retriever.SearchText(ctx, "word problems in math", 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Contains(t, matches[0].Chunk.Content, "word problems")

	result, err := app.Evaluator.Evaluate(ctx, "Let's break down the steps together", domain.Scenario{
		Subject:           "math",
		TimeOfDay:         "morning",
		LearningStyle:     "visual",
		BehavioralContext: domain.BehavioralContext{Type: "attention"},
		Difficulty:        "word problems",
	})
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 1.0)
}

func TestPrintReport(t *testing.T) {
	report := &service.IngestReport{
		Files: []service.FileReport{
			{Source: "a.txt", Chunks: 2},
			{Source: "b.bin", Skipped: true},
			{Source: "c.pdf", Error: "bad pdf", Err: assert.AnError},
		},
		Chunks: 2,
	}

	var out bytes.Buffer
	require.NoError(t, printReport(&out, report, false))
	assert.Contains(t, out.String(), "OK    a.txt (2 chunks)")
	assert.Contains(t, out.String(), "SKIP  b.bin")
	assert.Contains(t, out.String(), "FAIL  c.pdf: bad pdf")
	assert.Contains(t, out.String(), "3 files, 2 chunks, 1 failed")

	out.Reset()
	require.NoError(t, printReport(&out, report, true))
	var decoded service.IngestReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded.Files, 3)
	assert.Equal(t, "bad pdf", decoded.Files[2].Error)
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	bad := filepath.Join(dir, "bad.csv")
	other := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(good, []byte("category,strategy\nvisual,draw a diagram\n"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("name,value\nx,y\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("# notes"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runValidate(&out, []string{good}))
	assert.Contains(t, out.String(), "VALID    "+good)

	out.Reset()
	err := runValidate(&out, []string{good, bad, other})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 invalid file(s)")
	assert.Contains(t, out.String(), "INVALID  "+bad)
	assert.Contains(t, out.String(), "INVALID  "+other+": unsupported format")
}

func TestClearCmd_RequiresConfirmation(t *testing.T) {
	cmd := ClearCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestApp_IngestCategorySample(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "calm.txt")
	require.NoError(t, os.WriteFile(path, []byte("Lower your voice and move closer to the student."), 0o644))

	report, err := app.Ingestor.IngestCategory(ctx, "behavior_management", path)
	require.NoError(t, err)
	require.Positive(t, report.Chunks)

	stats, err := app.Store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(report.Chunks), stats.ByCategory["behavior_management"])

	var text bytes.Buffer
	require.NoError(t, runSample(ctx, &text, app.Store, "behavior_management", 3, false))
	assert.Contains(t, text.String(), "Lower your voice")

	var empty bytes.Buffer
	require.NoError(t, runSample(ctx, &empty, app.Store, "lesson_planning", 3, false))
	assert.Contains(t, empty.String(), `No chunks in category "lesson_planning"`)

	var out bytes.Buffer
	require.NoError(t, runSample(ctx, &out, app.Store, "behavior_management", 1, true))
	var chunks []struct {
		Source   string          `json:"source"`
		Metadata domain.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &chunks))
	require.Len(t, chunks, 1)
	assert.Equal(t, path, chunks[0].Source)
	assert.Equal(t, "behavior_management", chunks[0].Metadata.GetString(domain.MetaCategory))
}
