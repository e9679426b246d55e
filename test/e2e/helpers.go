//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/coachkb/internal/api/handlers"
	"github.com/cloo-solutions/coachkb/internal/api/middleware"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/evaluator"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/index"
	"github.com/cloo-solutions/coachkb/internal/logging"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/cloo-solutions/coachkb/internal/repository"
	"github.com/cloo-solutions/coachkb/internal/seed"
	"github.com/cloo-solutions/coachkb/internal/server"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/cloo-solutions/coachkb/internal/storage"
	"github.com/cloo-solutions/coachkb/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testAPIKey    = "coachkb-e2e-key-00000001"
	testDimension = 384
	testBucket    = "coachkb-e2e"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Store        *service.Store
	Ingestor     *service.Ingestor
	Provider     embedding.Provider
	Catalog      *evaluator.Catalog
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Seed loads the built-in knowledge and catalog.
func (e *E2ETestEnv) Seed() int {
	added, err := seed.NewSeeder(e.Provider, e.Store, e.Catalog, logging.Discard()).Seed(e.Ctx)
	if err != nil {
		e.T.Fatalf("failed to seed: %v", err)
	}
	return added
}

// BuildBinaries builds the coachkb and coachkbd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "coachkb-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"coachkbd", "coachkb"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunCoachkb runs the coachkb CLI against the test server.
func (e *E2ETestEnv) RunCoachkb(workDir string, args ...string) (string, error) {
	return e.RunCoachkbWithInput(workDir, "", args...)
}

// RunCoachkbWithInput runs the coachkb CLI command with stdin input
func (e *E2ETestEnv) RunCoachkbWithInput(workDir, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "coachkb"), args...)
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader([]byte(input))
	cmd.Env = append(os.Environ(),
		"HOME="+workDir,
		fmt.Sprintf("COACHKB_API_KEY=%s", testAPIKey),
		fmt.Sprintf("COACHKB_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunCoachkbd runs the admin CLI with the given environment.
func (e *E2ETestEnv) RunCoachkbd(workDir string, env []string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "coachkbd"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// HTTPError carries the status of a failed request.
type HTTPError struct {
	Status int
	Body   APIResponse
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body.Error)
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, authToken)
}

// Upload posts files as multipart "file" parts to /ingest.
func (e *E2ETestEnv) Upload(files map[string][]byte, authToken string) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/ingest", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req, authToken)
}

func (e *E2ETestEnv) send(req *http.Request, authToken string) (*APIResponse, error) {
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &HTTPError{Status: resp.StatusCode, Body: APIResponse{Error: string(respBody)}}
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: apiResp}
	}
	return &apiResp, nil
}

// startServer wires the postgres store, pgvector index and hash embedder
// behind the real router.
func (e *E2ETestEnv) startServer(port int) (string, func()) {
	logger := logging.Discard()
	m := metrics.New()

	e.Provider = embedding.NewHasher(testDimension)
	e.Store = service.NewStore(repository.NewDocumentRepository(e.Pool), repository.NewTxRunner(e.Pool), testDimension, logger)
	e.Ingestor = service.NewIngestor(extract.NewRegistry(logger), e.Provider, e.Store, logger, service.WithMetrics(m))

	retriever := index.NewRetriever(e.Provider, repository.NewVectorIndex(e.Pool, testDimension), m, logger)
	eval := evaluator.New(e.Provider, retriever, evaluator.NewRandomSource(42),
		evaluator.WithMetrics(m),
		evaluator.WithLogger(logger),
	)
	e.Catalog = eval.Catalog()

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   middleware.StaticKey(testAPIKey),
		Logger:          logger,
		Metrics:         m,
		DocumentHandler: handlers.NewDocumentHandler(e.Store, e.Ingestor),
		SearchHandler:   handlers.NewSearchHandler(retriever, 3),
		EvaluateHandler: handlers.NewEvaluateHandler(eval),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
