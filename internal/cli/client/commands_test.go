package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

// newTestAPI serves handler under an httptest server and returns a client
// pointed at it together with the requests it received.
func newTestAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*APIClient, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
			Body:   body.Bytes(),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewAPIClientWithConfig("coachkb-test-key-0001", srv.URL), &requests
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func testScenario() *domain.Scenario {
	return &domain.Scenario{
		Subject:           "math",
		TimeOfDay:         "morning",
		LearningStyle:     "visual",
		BehavioralContext: domain.BehavioralContext{Type: "attention"},
	}
}

func TestRunSearch(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, SearchResponse{
			Query: "fractions",
			Matches: []Match{{
				Chunk:      Chunk{ID: 7, Content: "Use pizza slices for fractions", Source: "math.txt", ChunkType: "text"},
				Similarity: 0.82,
			}},
		})
	})

	var out bytes.Buffer
	require.NoError(t, runSearch(api, &out, "fractions", 5, false))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/search", req.Path)
	assert.Equal(t, "Bearer coachkb-test-key-0001", req.Auth)
	assert.JSONEq(t, `{"query":"fractions","limit":5}`, string(req.Body))

	assert.Contains(t, out.String(), "Found 1 results")
	assert.Contains(t, out.String(), "[0.820] Use pizza slices for fractions")
	assert.Contains(t, out.String(), "Source: math.txt (text)  ID: 7")
}

func TestRunSearch_NoResults(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, SearchResponse{Query: "x", Matches: []Match{}})
	})

	var out bytes.Buffer
	require.NoError(t, runSearch(api, &out, "x", 3, false))
	assert.Equal(t, "No results found.\n", out.String())
}

func TestRunSearch_APIError(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"query is required","code":"VALIDATION_ERROR"}`))
	})

	err := runSearch(api, &bytes.Buffer{}, " ", 3, false)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestRunEvaluate(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, domain.EvaluationResult{
			Score:       0.5,
			Feedback:    []string{"Good math-specific support"},
			Suggestions: []string{"Try a structured start"},
			Degraded:    true,
			Summary:     "Overall Score: 50%",
		})
	})

	var out bytes.Buffer
	require.NoError(t, runEvaluate(api, &out, "break down the steps", testScenario(), false))

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/evaluate", (*reqs)[0].Path)
	var sent EvaluateRequest
	require.NoError(t, json.Unmarshal((*reqs)[0].Body, &sent))
	assert.Equal(t, "break down the steps", sent.Response)
	assert.Equal(t, "math", sent.Scenario.Subject)

	assert.Contains(t, out.String(), "Overall Score: 50%")
	assert.Contains(t, out.String(), "+ Good math-specific support")
	assert.Contains(t, out.String(), "- Try a structured start")
	assert.Contains(t, out.String(), "rule-based only")
}

func TestRunSemantic_JSON(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, domain.SemanticResult{StrategyScore: 0.6, InterventionScore: 0.4, TotalScore: 0.5})
	})

	var out bytes.Buffer
	require.NoError(t, runSemantic(api, &out, "let's focus", testScenario(), true))

	assert.Equal(t, "/evaluate/semantic", (*reqs)[0].Path)
	var got domain.SemanticResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 0.5, got.TotalScore)
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`subject: math
time_of_day: morning
learning_style: visual
behavioral_context:
  type: attention
  trigger: long worksheets
difficulty: word problems
`), 0o644))

	s, err := LoadScenario(good)
	require.NoError(t, err)
	assert.Equal(t, "math", s.Subject)
	assert.Equal(t, "long worksheets", s.BehavioralContext.Trigger)
	assert.Equal(t, "word problems", s.Difficulty)

	asJSON := filepath.Join(dir, "scenario.json")
	require.NoError(t, os.WriteFile(asJSON, []byte(`{"subject":"reading","time_of_day":"afternoon","learning_style":"auditory","behavioral_context":{"type":"frustration"}}`), 0o644))
	s, err = LoadScenario(asJSON)
	require.NoError(t, err)
	assert.Equal(t, "reading", s.Subject)

	missing := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("subject: math\n"), 0o644))
	_, err = LoadScenario(missing)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeMalformedScenario))
}

func TestRunStats(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, Stats{
			Total:       3,
			ByChunkType: map[string]int64{"text": 2, "structured": 1},
			BySource:    map[string]int64{"b.txt": 1, "a.json": 2},
			ByCategory:  map[string]int64{"teaching_strategies": 3},
		})
	})

	var out bytes.Buffer
	require.NoError(t, runStats(api, &out, false))

	assert.Equal(t, "/stats", (*reqs)[0].Path)
	text := out.String()
	assert.Contains(t, text, "Total chunks: 3")
	assert.Contains(t, text, "By category:")
	assert.Contains(t, text, "teaching_strategies")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("a.json")), bytes.Index(out.Bytes(), []byte("b.txt")))
}

func TestRunIngest(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "strategies.txt")
	require.NoError(t, os.WriteFile(file, []byte("Strategy: think-pair-share"), 0o644))

	var gotName, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"no files"}`))
			return
		}
		gotName = header.Filename
		writeData(w, http.StatusOK, IngestReport{
			Files:  []FileReport{{Source: header.Filename, Chunks: 1}, {Source: "x.bin", Skipped: true}},
			Chunks: 1,
		})
	}))
	defer srv.Close()

	var last int64
	api := NewAPIClientWithConfig("", srv.URL)
	var out bytes.Buffer
	require.NoError(t, runIngest(api, &out, []string{file}, "", func(current, total int64) {
		last = current
		assert.LessOrEqual(t, current, total)
	}, false))

	assert.Equal(t, "strategies.txt", gotName)
	assert.Empty(t, gotAuth)
	assert.Positive(t, last)
	assert.Contains(t, out.String(), "OK    strategies.txt (1 chunks)")
	assert.Contains(t, out.String(), "SKIP  x.bin")
	assert.Contains(t, out.String(), "2 files, 1 chunks, 0 failed")
}

func TestRunIngest_Category(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "calm.txt")
	require.NoError(t, os.WriteFile(file, []byte("lower your voice"), 0o644))

	var gotCategory string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotCategory = r.FormValue("category")
		writeData(w, http.StatusOK, IngestReport{Files: []FileReport{{Source: "calm.txt", Chunks: 1}}, Chunks: 1})
	}))
	defer srv.Close()

	api := NewAPIClientWithConfig("", srv.URL)
	require.NoError(t, runIngest(api, &bytes.Buffer{}, []string{file}, "behavior_management", nil, false))

	assert.Equal(t, "behavior_management", gotCategory)
}

func TestRunList_Category(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, DocumentList{
			Items:   []Chunk{{ID: 3, Content: "Use proximity", Source: "behavior.txt", ChunkType: "text"}},
			Cursor:  "next",
			HasMore: true,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runList(api, &out, ListOptions{Category: "behavior_management", Limit: 1}, false))

	assert.Equal(t, "/documents?category=behavior_management&limit=1", (*reqs)[0].Path)
	assert.Contains(t, out.String(), "Use proximity")
	assert.Contains(t, out.String(), "--cursor next")
}

func TestRunSample(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, SampleResponse{
			Category: "teaching_strategies",
			Items:    []Chunk{{ID: 1, Content: "Think-pair-share", Source: "strategies.txt", ChunkType: "text"}},
		})
	})

	var out bytes.Buffer
	require.NoError(t, runSample(api, &out, "teaching_strategies", 2, false))

	assert.Equal(t, http.MethodGet, (*reqs)[0].Method)
	assert.Equal(t, "/categories/teaching_strategies/sample?n=2", (*reqs)[0].Path)
	assert.Contains(t, out.String(), "Think-pair-share")
}

func TestRunSample_Empty(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, SampleResponse{Category: "none", Items: []Chunk{}})
	})

	var out bytes.Buffer
	require.NoError(t, runSample(api, &out, "none", 0, false))

	assert.Equal(t, "No chunks in category \"none\".\n", out.String())
}

func TestRunGet_MetadataInStoredOrder(t *testing.T) {
	meta := domain.Metadata{}.
		Set("page", domain.IntValue(4)).
		Set("category", domain.StringValue("academic_content")).
		Set("heading", domain.StringValue("Fractions"))
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, Chunk{ID: 5, Content: "Use pizza slices", Source: "math.pdf", ChunkType: "pdf", Metadata: meta})
	})

	var out bytes.Buffer
	require.NoError(t, runGet(api, &out, 5, false))

	text := out.String()
	assert.Contains(t, text, "  page: 4\n  category: academic_content\n  heading: Fractions\n")
}

func TestRunEval(t *testing.T) {
	api, reqs := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, SearchResponse{Matches: []Match{
			{Chunk: Chunk{Source: "other.txt"}},
			{Chunk: Chunk{Source: "math.txt"}},
		}})
	})

	suite := &EvalSuite{Cases: []EvalCase{
		{Query: "fractions", ExpectedSources: []string{"math.txt"}},
		{Query: "phonics", ExpectedSources: []string{"reading.txt"}},
	}}

	var out bytes.Buffer
	require.NoError(t, runEval(api, &out, suite, 0, 5, false, true))
	require.Len(t, *reqs, 2)
	assert.JSONEq(t, `{"query":"fractions","limit":10}`, string((*reqs)[0].Body))

	var got EvalOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got.Summary.Total)
	assert.Equal(t, 10, got.Summary.Limit)
	assert.InDelta(t, 0.5, got.Summary.RecallAtK, 1e-9)
	assert.InDelta(t, 0.25, got.Summary.MRR, 1e-9)
	assert.InDelta(t, 0.5, got.Summary.HitRateAtK, 1e-9)
}

func TestLoadEvalSuite(t *testing.T) {
	dir := t.TempDir()

	wrapped := filepath.Join(dir, "suite.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"limit":4,"cases":[{"query":"q","expected_sources":["a.txt"]}]}`), 0o644))
	suite, err := loadEvalSuite(wrapped)
	require.NoError(t, err)
	assert.Equal(t, 4, suite.Limit)
	assert.Len(t, suite.Cases, 1)

	bare := filepath.Join(dir, "cases.json")
	require.NoError(t, os.WriteFile(bare, []byte(`[{"query":"q","expected_sources":["a.txt"]}]`), 0o644))
	suite, err = loadEvalSuite(bare)
	require.NoError(t, err)
	assert.Len(t, suite.Cases, 1)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o644))
	_, err = loadEvalSuite(empty)
	assert.Error(t, err)
}
