package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const workspacePrefix = "stationpivot-"

// Workspace is a per-invocation scratch directory. Two invocations never
// share one, so concurrent requests cannot see each other's files.
type Workspace struct {
	ID  string
	Dir string
}

// NewWorkspace creates a uniquely named directory under baseDir. An empty
// baseDir means the OS temp directory.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	id := uuid.NewString()
	dir := filepath.Join(baseDir, workspacePrefix+id)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base %s: %w", baseDir, err)
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Path joins elem onto the workspace directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// Close removes the workspace and everything in it. It is safe to call more than once.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.Dir, err)
	}
	return nil
}

// CheckWritable verifies that workspaces can be created under baseDir.
func CheckWritable(baseDir string) error {
	ws, err := NewWorkspace(baseDir)
	if err != nil {
		return err
	}
	return ws.Close()
}
