//go:build e2e

package e2e

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	ID        int64           `json:"id"`
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	ChunkType string          `json:"chunk_type"`
	Metadata  domain.Metadata `json:"metadata"`
}

type searchResult struct {
	Query   string `json:"query"`
	Matches []struct {
		Chunk      chunk   `json:"chunk"`
		Similarity float64 `json:"similarity"`
	} `json:"matches"`
}

type ingestReport struct {
	Files []struct {
		Source  string `json:"source"`
		Chunks  int    `json:"chunks"`
		Skipped bool   `json:"skipped"`
		Error   string `json:"error"`
	} `json:"files"`
	Chunks int `json:"chunks"`
}

func scenario() map[string]any {
	return map[string]any{
		"subject":        "math",
		"time_of_day":    "morning",
		"learning_style": "visual",
		"behavioral_context": map[string]any{
			"type":          "attention",
			"trigger":       "long worksheets",
			"manifestation": "looking out the window",
		},
		"difficulty": "word problems",
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "expected HTTP error, got %v", err)
	return httpErr.Status
}

// TestE2E_Auth checks which routes need the API key.
func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("health is open", func(t *testing.T) {
		_, err := env.Get("/health", "")
		require.NoError(t, err)
	})

	t.Run("missing key returns 401", func(t *testing.T) {
		_, err := env.Get("/stats", "")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	})

	t.Run("wrong key returns 401", func(t *testing.T) {
		_, err := env.Post("/search", map[string]any{"query": "focus"}, "not-the-key")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	})

	t.Run("valid key is accepted", func(t *testing.T) {
		resp, err := env.Get("/stats", testAPIKey)
		require.NoError(t, err)

		var stats struct {
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.Zero(t, stats.Total)
	})
}

// TestE2E_DocumentLifecycle ingests uploads and walks the document endpoints.
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("ingest mixed upload", func(t *testing.T) {
		resp, err := env.Upload(map[string][]byte{
			"strategies.txt": []byte("Strategy: think-pair-share for discussion.\n\nStrategy: exit tickets to check understanding."),
			"catalog.csv":    []byte("category,strategy\nvisual,draw a diagram\nauditory,read aloud\n"),
			"photo.png":      {0x89, 0x50, 0x4e, 0x47},
		}, testAPIKey)
		require.NoError(t, err)

		var report ingestReport
		require.NoError(t, json.Unmarshal(resp.Data, &report))
		require.Len(t, report.Files, 3)
		assert.Equal(t, 4, report.Chunks)
		for _, f := range report.Files {
			assert.Empty(t, f.Error, f.Source)
			if f.Source == "photo.png" {
				assert.True(t, f.Skipped)
			}
		}
	})

	var firstID int64

	t.Run("list pages in id order", func(t *testing.T) {
		resp, err := env.Get("/documents?limit=3", testAPIKey)
		require.NoError(t, err)

		var page struct {
			Items   []chunk `json:"items"`
			Cursor  string  `json:"cursor"`
			HasMore bool    `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 3)
		assert.True(t, page.HasMore)
		assert.NotEmpty(t, page.Cursor)
		firstID = page.Items[0].ID

		resp, err = env.Get("/documents?limit=3&cursor="+page.Cursor, testAPIKey)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Len(t, page.Items, 1)
		assert.False(t, page.HasMore)
	})

	t.Run("get by id", func(t *testing.T) {
		resp, err := env.Get("/documents/"+jsonNumber(firstID), testAPIKey)
		require.NoError(t, err)

		var c chunk
		require.NoError(t, json.Unmarshal(resp.Data, &c))
		assert.Equal(t, firstID, c.ID)
		assert.NotEmpty(t, c.Content)
	})

	t.Run("get unknown id returns 404", func(t *testing.T) {
		_, err := env.Get("/documents/999999", testAPIKey)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	})

	t.Run("sources and stats", func(t *testing.T) {
		resp, err := env.Get("/sources", testAPIKey)
		require.NoError(t, err)
		var sources []string
		require.NoError(t, json.Unmarshal(resp.Data, &sources))
		assert.Equal(t, []string{"catalog.csv", "strategies.txt"}, sources)

		resp, err = env.Get("/stats", testAPIKey)
		require.NoError(t, err)
		var stats struct {
			Total    int64            `json:"total"`
			BySource map[string]int64 `json:"by_source"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.Equal(t, int64(4), stats.Total)
		assert.Equal(t, int64(2), stats.BySource["strategies.txt"])
	})

	t.Run("clear empties the store", func(t *testing.T) {
		resp, err := env.Delete("/documents", testAPIKey)
		require.NoError(t, err)
		var cleared struct {
			Deleted int64 `json:"deleted"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &cleared))
		assert.Equal(t, int64(4), cleared.Deleted)

		resp, err = env.Get("/stats", testAPIKey)
		require.NoError(t, err)
		var stats struct {
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.Zero(t, stats.Total)
	})
}

// TestE2E_SearchAndEvaluate runs retrieval and both scoring modes over the
// seeded knowledge.
func TestE2E_SearchAndEvaluate(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	require.Positive(t, env.Seed())

	t.Run("search returns ranked matches", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]any{"query": "visual learner strategies", "limit": 5}, testAPIKey)
		require.NoError(t, err)

		var result searchResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		require.Len(t, result.Matches, 5)
		for i := 1; i < len(result.Matches); i++ {
			assert.GreaterOrEqual(t, result.Matches[i-1].Similarity, result.Matches[i].Similarity)
		}
	})

	t.Run("blank query returns 400", func(t *testing.T) {
		_, err := env.Post("/search", map[string]any{"query": "  "}, testAPIKey)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})

	t.Run("evaluate scores a response", func(t *testing.T) {
		resp, err := env.Post("/evaluate", map[string]any{
			"response": "Let's start with a structured start, look at this diagram, let's focus and break down the steps",
			"scenario": scenario(),
		}, testAPIKey)
		require.NoError(t, err)

		var result domain.EvaluationResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.False(t, result.Degraded)
		assert.InDelta(t, 1.0, result.Score, 1e-9)
		assert.Len(t, result.Breakdown, 4)
		assert.Contains(t, result.Summary, "Overall Score")
	})

	t.Run("evaluate rejects malformed scenario", func(t *testing.T) {
		s := scenario()
		delete(s, "subject")
		_, err := env.Post("/evaluate", map[string]any{"response": "hi", "scenario": s}, testAPIKey)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, domain.ErrCodeMalformedScenario, httpErr.Body.Code)
	})

	t.Run("semantic scores are bounded", func(t *testing.T) {
		resp, err := env.Post("/evaluate/semantic", map[string]any{
			"response": "Let's draw a picture of the problem together",
			"scenario": scenario(),
		}, testAPIKey)
		require.NoError(t, err)

		var result domain.SemanticResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.GreaterOrEqual(t, result.TotalScore, 0.0)
		assert.LessOrEqual(t, result.TotalScore, 1.0)
	})

	t.Run("teaching context groups knowledge", func(t *testing.T) {
		resp, err := env.Post("/evaluate/context", map[string]any{"scenario": scenario()}, testAPIKey)
		require.NoError(t, err)

		var tc domain.TeachingContext
		require.NoError(t, json.Unmarshal(resp.Data, &tc))
		assert.NotEmpty(t, tc.Behavior)
		assert.NotEmpty(t, tc.Strategies)
		assert.NotEmpty(t, tc.Content)
	})
}

// TestE2E_S3Ingestion reads knowledge from the bucket into the store.
func TestE2E_S3Ingestion(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	require.NoError(t, env.S3Client.PutObject(env.Ctx, "kb/reading.txt",
		[]byte("Phonics strategies: sound it out and picture walk before reading."), "text/plain"))
	require.NoError(t, env.S3Client.PutObject(env.Ctx, "other/ignored.txt", []byte("not ingested"), "text/plain"))

	sources, err := env.S3Client.Sources(env.Ctx, "kb/")
	require.NoError(t, err)
	require.Len(t, sources, 1)

	report, err := env.Ingestor.IngestSources(env.Ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)

	resp, err := env.Post("/search", map[string]any{"query": "phonics picture walk", "limit": 1}, testAPIKey)
	require.NoError(t, err)

	var result searchResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "s3://"+testBucket+"/kb/reading.txt", result.Matches[0].Chunk.Source)
}

// TestE2E_CLIWorkflow drives the built binaries against the server.
func TestE2E_CLIWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	workDir := t.TempDir()
	knowledge := filepath.Join(workDir, "strategies.txt")
	require.NoError(t, os.WriteFile(knowledge, []byte("Strategy: use manipulatives for fractions.\n\nStrategy: number lines for subtraction."), 0o644))
	scenarioFile := filepath.Join(workDir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioFile, []byte(`subject: math
time_of_day: morning
learning_style: visual
behavioral_context:
  type: attention
difficulty: fractions
`), 0o644))

	t.Run("coachkbd validate checks layout", func(t *testing.T) {
		output, err := env.RunCoachkbd(workDir, nil, "validate", knowledge)
		require.NoError(t, err, output)
		assert.Contains(t, output, "VALID")
	})

	t.Run("coachkb ingest uploads files", func(t *testing.T) {
		output, err := env.RunCoachkb(workDir, "ingest", "--quiet", knowledge)
		require.NoError(t, err, output)
		assert.Contains(t, output, "OK    strategies.txt (2 chunks)")
	})

	t.Run("coachkb search finds the upload", func(t *testing.T) {
		output, err := env.RunCoachkb(workDir, "search", "manipulatives fractions", "--output")
		require.NoError(t, err, output)

		var result searchResult
		require.NoError(t, json.Unmarshal([]byte(output), &result))
		require.NotEmpty(t, result.Matches)
		assert.Contains(t, result.Matches[0].Chunk.Content, "manipulatives")
	})

	t.Run("coachkb evaluate reads response from stdin", func(t *testing.T) {
		output, err := env.RunCoachkbWithInput(workDir, "Let's draw a picture of the fractions", "evaluate", "-s", scenarioFile, "-r", "-", "--output")
		require.NoError(t, err, output)

		var result domain.EvaluationResult
		require.NoError(t, json.Unmarshal([]byte(output), &result))
		assert.Len(t, result.Breakdown, 4)
	})

	t.Run("coachkb stats reports totals", func(t *testing.T) {
		output, err := env.RunCoachkb(workDir, "stats")
		require.NoError(t, err, output)
		assert.True(t, strings.HasPrefix(output, "Total chunks: 2"), output)
	})
}

func jsonNumber(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}
