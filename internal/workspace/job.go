package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/itstheanurag/runbox/internal/languages"
)

// Job is one staged program. Every path it holds lives under Dir.
type Job struct {
	ID           string
	Language     languages.ID
	Dir          string
	SourcePath   string
	InputPath    string
	ArtifactPath string // empty for interpreted languages
	ClassName    string // java only
	TimeLimit    time.Duration

	mu      sync.Mutex
	cleaned bool
}

// CommandVars exposes the job's paths to the language command templates.
func (j *Job) CommandVars() languages.CommandVars {
	return languages.CommandVars{
		Source:    j.SourcePath,
		Artifact:  j.ArtifactPath,
		Dir:       j.Dir,
		ClassName: j.ClassName,
	}
}

// Cleanup removes the source, artifact and input files, then the job directory
// with anything else the toolchain left there. Missing files are not errors.
// Calls after the first one do nothing.
func (j *Job) Cleanup() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cleaned {
		return nil
	}
	j.cleaned = true

	var errs []error
	for _, path := range []string{j.SourcePath, j.ArtifactPath, j.InputPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	if j.Dir != "" {
		if err := os.RemoveAll(j.Dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", j.Dir, err))
		}
	}
	return errors.Join(errs...)
}

// Paths lists every file path owned by the job.
func (j *Job) Paths() []string {
	paths := []string{j.SourcePath, j.InputPath}
	if j.ArtifactPath != "" {
		paths = append(paths, j.ArtifactPath)
	}
	return paths
}
