package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/logging"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSourceIngestor is a mock implementation of SourceIngestor
type MockSourceIngestor struct {
	mock.Mock
}

func (m *MockSourceIngestor) IngestSources(ctx context.Context, sources []extract.Source) (*service.IngestReport, error) {
	args := m.Called(ctx, sources)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestReport), args.Error(1)
}

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sourceNames(sources []extract.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return names
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker(mockProcessor, 100*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// signalingProcessor returns a processor mock that signals each run on the
// returned channel.
func signalingProcessor() (*MockJobProcessor, <-chan struct{}) {
	ran := make(chan struct{}, 16)
	m := new(MockJobProcessor)
	m.On("ProcessJobs", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	return m, ran
}

func TestWorker_Trigger(t *testing.T) {
	mockProcessor, ran := signalingProcessor()

	worker := NewWorker(mockProcessor, time.Hour, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx)
	worker.Trigger()
	worker.Trigger()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run the processor")
	}
	worker.Stop()
}

func TestLedger_IngestedAndFailures(t *testing.T) {
	l := openTestLedger(t)

	done, err := l.Ingested("a.txt", "h1")
	require.NoError(t, err)
	assert.False(t, done)

	n, err := l.MarkFailed("a.txt", "h1", errors.New("bad"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = l.MarkFailed("a.txt", "h1", errors.New("worse"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, ok, err := l.Failure("a.txt", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "worse", f.LastError)

	n, err = l.MarkFailed("a.txt", "h2", errors.New("new version"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, l.MarkIngested("a.txt", "h2", 4))
	_, ok, err = l.Failure("a.txt", "h2")
	require.NoError(t, err)
	assert.False(t, ok)

	done, err = l.Ingested("a.txt", "h2")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = l.Ingested("a.txt", "h1")
	require.NoError(t, err)
	assert.False(t, done)

	entries, err := l.Entries()
	require.NoError(t, err)
	assert.Equal(t, 4, entries["a.txt"].Chunks)

	require.NoError(t, l.Reset())
	entries, err = l.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
}

func TestDropDirProcessor_ProcessJobs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"k":"v"}`), 0o644))

	ingestor := new(MockSourceIngestor)
	p := NewDropDirProcessor(dir, service.NewWalker(nil, nil), ingestor, openTestLedger(t), logging.Discard())
	ctx := context.Background()

	ingestor.On("IngestSources", ctx, mock.MatchedBy(func(s []extract.Source) bool {
		return assert.ObjectsAreEqual([]string{a, b}, sourceNames(s))
	})).Return(&service.IngestReport{
		Files:  []service.FileReport{{Source: a, Chunks: 1}, {Source: b, Chunks: 1}},
		Chunks: 2,
	}, nil).Once()

	require.NoError(t, p.ProcessJobs(ctx))
	// unchanged files are not ingested again
	require.NoError(t, p.ProcessJobs(ctx))

	require.NoError(t, os.WriteFile(a, []byte("alpha v2"), 0o644))
	ingestor.On("IngestSources", ctx, mock.MatchedBy(func(s []extract.Source) bool {
		return len(s) == 1 && s[0].Name == a && string(s[0].Data) == "alpha v2"
	})).Return(&service.IngestReport{
		Files:  []service.FileReport{{Source: a, Chunks: 1}},
		Chunks: 1,
	}, nil).Once()

	require.NoError(t, p.ProcessJobs(ctx))
	ingestor.AssertExpectations(t)
	ingestor.AssertNumberOfCalls(t, "IngestSources", 2)
}

func TestDropDirProcessor_RetriesThenGivesUp(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

	ingestor := new(MockSourceIngestor)
	ledger := openTestLedger(t)
	p := NewDropDirProcessor(dir, service.NewWalker(nil, nil), ingestor, ledger, logging.Discard())
	ctx := context.Background()

	failure := errors.New("invalid json document")
	ingestor.On("IngestSources", ctx, mock.Anything).Return(&service.IngestReport{
		Files: []service.FileReport{{Source: bad, Error: failure.Error(), Err: failure}},
	}, nil)

	for i := 0; i < MaxRetries+2; i++ {
		require.NoError(t, p.ProcessJobs(ctx))
	}

	ingestor.AssertNumberOfCalls(t, "IngestSources", MaxRetries)
	f, ok, err := ledger.Failure(bad, ContentHash([]byte("{")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MaxRetries, f.Retries)
}

func TestDropDirProcessor_IngestError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	ingestor := new(MockSourceIngestor)
	ingestor.On("IngestSources", mock.Anything, mock.Anything).Return(nil, context.Canceled)
	p := NewDropDirProcessor(dir, service.NewWalker(nil, nil), ingestor, openTestLedger(t), logging.Discard())

	err := p.ProcessJobs(context.Background())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDropDirProcessor_EmptyDir(t *testing.T) {
	ingestor := new(MockSourceIngestor)
	p := NewDropDirProcessor(t.TempDir(), service.NewWalker(nil, nil), ingestor, openTestLedger(t), logging.Discard())

	require.NoError(t, p.ProcessJobs(context.Background()))
	ingestor.AssertNotCalled(t, "IngestSources", mock.Anything, mock.Anything)
}

func TestWatch_TriggersWorker(t *testing.T) {
	dir := t.TempDir()
	mockProcessor, ran := signalingProcessor()
	worker := NewWorker(mockProcessor, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	watchErr := make(chan error, 1)
	go func() { watchErr <- Watch(ctx, dir, worker, logging.Discard()) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello"), 0o644))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("file write did not trigger the worker")
	}

	cancel()
	assert.NoError(t, <-watchErr)
}

func TestWatch_MissingDir(t *testing.T) {
	worker := NewWorker(new(MockJobProcessor), time.Hour, logging.Discard())

	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), worker, logging.Discard())

	assert.Error(t, err)
}
