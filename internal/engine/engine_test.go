package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"larkvault/internal/feishu"
	"larkvault/internal/storage"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a file-backed database in a temp dir: workers run on
// their own goroutines and an in-memory sqlite is per-connection.
func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeAPI implements the API interface against in-memory fixtures and
// records every download it performs.
type fakeAPI struct {
	mu sync.Mutex

	folders map[string][]feishu.File     // folderToken -> entries
	spaces  []feishu.WikiSpace           // wiki spaces
	nodes   map[string][]feishu.WikiNode // spaceID "/" parent -> children

	listErr error // returned by every listing call when set

	failTokens map[string]error // download/export failures per token

	downloads     []downloadCall // every DownloadToPath invocation
	exportTickets int

	// When blockAfter >= 0, every download from the (blockAfter+1)-th on
	// parks until the context is cancelled.
	blockAfter int
	blocked    chan struct{}
}

type downloadCall struct {
	Token    string
	Dest     string
	Exported bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		folders:    map[string][]feishu.File{},
		nodes:      map[string][]feishu.WikiNode{},
		failTokens: map[string]error{},
		blockAfter: -1,
		blocked:    make(chan struct{}, 16),
	}
}

func (f *fakeAPI) ListFolderAll(ctx context.Context, folderToken string) ([]feishu.File, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.folders[folderToken], nil
}

func (f *fakeAPI) ListWikiSpacesAll(ctx context.Context) ([]feishu.WikiSpace, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.spaces, nil
}

func (f *fakeAPI) ListWikiSpaceNodesAll(ctx context.Context, spaceID, parentNodeToken string) ([]feishu.WikiNode, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.nodes[spaceID+"/"+parentNodeToken], nil
}

func (f *fakeAPI) CreateExportJob(ctx context.Context, token, fileType string) (string, error) {
	if err := f.failTokens[token]; err != nil {
		return "", err
	}
	f.mu.Lock()
	f.exportTickets++
	f.mu.Unlock()
	return "ticket-" + token, nil
}

func (f *fakeAPI) AwaitExport(ctx context.Context, ticket, originalToken string, maxPolls int) (string, error) {
	return "dl-" + originalToken, nil
}

func (f *fakeAPI) DownloadToPath(ctx context.Context, token, destPath string, exported bool) error {
	f.mu.Lock()
	n := len(f.downloads)
	f.downloads = append(f.downloads, downloadCall{Token: token, Dest: destPath, Exported: exported})
	block := f.blockAfter >= 0 && n >= f.blockAfter
	f.mu.Unlock()

	if block {
		select {
		case f.blocked <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}

	if err := f.failTokens[token]; err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("content-"+token), 0644)
}

func (f *fakeAPI) downloadCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.downloads {
		if d.Token == token {
			n++
		}
	}
	return n
}

// waitForStatus polls the store until the task reaches one of the wanted
// statuses.
func waitForStatus(t *testing.T, s *storage.Storage, taskID string, want ...string) storage.DownloadTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.GetTask(taskID)
		require.NoError(t, err)
		for _, w := range want {
			if task.Status == w {
				return task
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := s.GetTask(taskID)
	t.Fatalf("task %s never reached %v, stuck in %s", taskID, want, task.Status)
	return task
}

// waitDeadline returns a poll step that sleeps briefly and reports
// whether the overall deadline has passed.
func waitDeadline() func() bool {
	deadline := time.Now().Add(5 * time.Second)
	return func() bool {
		time.Sleep(2 * time.Millisecond)
		return time.Now().After(deadline)
	}
}

func waitForWorkerExit(t *testing.T, m *Manager, taskID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !m.Running(taskID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker for %s never exited", taskID)
}

// mustCreateTask persists a pending task over the given selection blob.
func mustCreateTask(t *testing.T, m *Manager, outputPath, selectedNodes string) *storage.DownloadTask {
	t.Helper()
	task, err := m.CreateTask(CreateTaskRequest{
		Name:          "test task",
		OutputPath:    outputPath,
		SelectedNodes: selectedNodes,
	})
	require.NoError(t, err)
	return task
}

func driveFileSelection(token, name string) string {
	return fmt.Sprintf(`[{"path": [], "type": "FeishuFile", "fileItem": {"token": %q, "name": %q, "type": "file"}}]`, token, name)
}
