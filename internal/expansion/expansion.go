// Package expansion implements C4: turning one (preset, input file) pair
// into a graph of concrete Jobs, submitted to a Queue, wiring up
// intra-preset dependencies (spec §4.4).
package expansion

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mikaelsundell/jobqueue/internal/job"
	"github.com/mikaelsundell/jobqueue/internal/jobid"
	"github.com/mikaelsundell/jobqueue/internal/preset"
	"github.com/mikaelsundell/jobqueue/internal/substitute"
)

// Submitter is the subset of Queue that Expansion needs. Satisfied by
// *queue.Queue.
type Submitter interface {
	Submit(j *job.Job, dependsOn *jobid.ID) (jobid.ID, error)
	NewJob(humanID, name, filename, command string, args []string, workDir, outputDir string, priority int) (*job.Job, error)
}

// ErrNoPreset is returned when Expand is called with a nil or invalid
// preset — a caller-level mistake, not a job-lifecycle error.
var ErrNoPreset = errors.New("expansion: preset is nil or invalid")

// ErrNoFiles is returned when Expand is called with zero input files.
var ErrNoFiles = errors.New("expansion: no input files")

// Options configures a single Expand call.
type Options struct {
	OutputDir     string
	CreateFolders bool
}

// Expand materializes jobs for preset p against every file in files,
// submitting each to q, and returns the total number of jobs submitted so
// the caller can advance a progress surface. Per-task failures (e.g. an
// unresolved dependson within one file's expansion) are recorded on the
// affected Job itself, per spec §4.4 step 3 and §7 — they never surface as
// a returned error.
func Expand(q Submitter, p *preset.Preset, files []string, opts Options) (int, error) {
	if p == nil || !p.Valid() {
		return 0, ErrNoPreset
	}
	if len(files) == 0 {
		return 0, ErrNoFiles
	}

	submitted := 0
	for _, file := range files {
		n, err := expandFile(q, p, file, opts)
		if err != nil {
			return submitted, err
		}
		submitted += n
	}
	return submitted, nil
}

// pendingDependent is a Job whose dependson human id hasn't resolved to a
// uuid yet within this file's expansion.
type pendingDependent struct {
	j         *job.Job
	humanID   string
	dependson string
}

func expandFile(q Submitter, p *preset.Preset, file string, opts Options) (int, error) {
	idToUUID := map[string]jobid.ID{}
	var pending []pendingDependent

	submitted := 0

	for _, task := range p.Tasks() {
		inputVars := substitute.Vars{Input: file}
		extension := substitute.Expand(task.Extension, inputVars)
		inputBase := substitute.Expand("%inputbase%", inputVars)

		outDir := opts.OutputDir
		if opts.CreateFolders {
			outDir = filepath.Join(outDir, inputBase)
		}
		outputFile := filepath.Join(outDir, inputBase+"."+extension)

		vars := substitute.Vars{Input: file, Output: outputFile}

		command := substitute.Expand(task.Command, vars)
		workDir := substitute.Expand(task.StartIn, vars)

		args := substitute.Tokenize(substitute.Expand(task.Arguments, vars))

		j, err := q.NewJob(task.ID, task.Name, filepath.Base(file), command, args, workDir, outDir, 0)
		if err != nil {
			return submitted, fmt.Errorf("expansion: failed to construct job for task %q: %w", task.Name, err)
		}

		if task.DependsOn == "" {
			if _, err := q.Submit(j, nil); err != nil {
				return submitted, fmt.Errorf("expansion: failed to submit job for task %q: %w", task.Name, err)
			}
			idToUUID[task.ID] = j.UUID()
			submitted++
			continue
		}

		pending = append(pending, pendingDependent{j: j, humanID: task.ID, dependson: task.DependsOn})
	}

	for _, pd := range pending {
		parent, ok := idToUUID[pd.dependson]
		if !ok {
			// The job is marked Failed with an explanatory log and is not
			// submitted: it never reaches the queue and is not counted.
			// Being unsubmitted, it emits no events.
			pd.j.AppendLog(fmt.Sprintf("\nStatus:\nMissing dependency, task %q could not be resolved\n", pd.dependson))
			pd.j.SetStatus(job.StatusFailed)
			continue
		}

		if _, err := q.Submit(pd.j, &parent); err != nil {
			return submitted, fmt.Errorf("expansion: failed to submit dependent job: %w", err)
		}
		idToUUID[pd.humanID] = pd.j.UUID()
		submitted++
	}

	return submitted, nil
}
