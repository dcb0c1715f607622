package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/itstheanurag/runbox/internal/languages"
)

var (
	// ErrWorkspace wraps every filesystem failure while staging a job.
	ErrWorkspace = errors.New("workspace error")
	// ErrInvalidSource is returned when the source cannot be staged under a valid name.
	ErrInvalidSource = errors.New("invalid source")
)

const inputSuffix = ".in"

// Materializer stages jobs under a root directory, one subdirectory per job.
type Materializer struct {
	root string
}

func NewMaterializer(root string) *Materializer {
	return &Materializer{root: root}
}

func (m *Materializer) Root() string {
	return m.root
}

// Materialize writes the source and stdin of a new job into its own directory.
// On failure everything created so far is removed.
func (m *Materializer) Materialize(lang languages.Language, source, stdin string, timeLimit time.Duration) (*Job, error) {
	id := uuid.NewString()

	base := id
	var className string
	if lang.ID == languages.Java {
		name, err := JavaClassName(source)
		if err != nil {
			return nil, err
		}
		base, className = name, name
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", ErrWorkspace, m.root, err)
	}
	absRoot, err := filepath.Abs(m.root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root %s: %v", ErrWorkspace, m.root, err)
	}

	dir := filepath.Join(absRoot, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create job dir: %v", ErrWorkspace, err)
	}

	job := &Job{
		ID:         id,
		Language:   lang.ID,
		Dir:        dir,
		SourcePath: filepath.Join(dir, base+"."+lang.Config.Extension),
		InputPath:  filepath.Join(dir, id+inputSuffix),
		ClassName:  className,
		TimeLimit:  timeLimit,
	}
	if lang.Compiled() {
		job.ArtifactPath = filepath.Join(dir, base+lang.Config.ArtifactSuffix)
	}

	if err := os.WriteFile(job.SourcePath, []byte(source), 0644); err != nil {
		_ = job.Cleanup()
		return nil, fmt.Errorf("%w: write source: %v", ErrWorkspace, err)
	}
	if err := os.WriteFile(job.InputPath, []byte(stdin), 0644); err != nil {
		_ = job.Cleanup()
		return nil, fmt.Errorf("%w: write input: %v", ErrWorkspace, err)
	}

	return job, nil
}
