// Package cli implements C8: the cobra command tree that is the external
// collaborator described in the overview — it loads a preset, expands it
// against dropped input files, submits the resulting jobs to a Queue, and
// renders the event stream to a terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mikaelsundell/jobqueue/internal/config"
	"github.com/mikaelsundell/jobqueue/internal/events"
	"github.com/mikaelsundell/jobqueue/internal/expansion"
	"github.com/mikaelsundell/jobqueue/internal/job"
	"github.com/mikaelsundell/jobqueue/internal/preset"
	"github.com/mikaelsundell/jobqueue/internal/queue"
)

// errJobsFailed is returned by run when the queue drained with at least one
// job left in Failed or Dependency, so the process exits non-zero. main
// prints the command's usage text and this error, as it does for any error
// that is not an *exec.ExitError.
var errJobsFailed = errors.New("one or more jobs did not complete successfully")

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Expand a preset against every file under filesFrom and run the resulting jobs to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.New(cmd, cfgFile)
			if err != nil {
				return err
			}
			return runQueue(cmd, cfg)
		},
	}

	config.Flags(cmd)
	return cmd
}

func runQueue(cmd *cobra.Command, cfg *config.Config) error {
	presetPath := filepath.Join(cfg.PresetFrom(), cfg.PresetSelected())
	p, err := preset.Read(presetPath)
	if err != nil {
		return err
	}
	if !p.Valid() {
		return p.Err()
	}

	files, err := listFiles(cfg.FilesFrom())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no files found under %s\n", cfg.FilesFrom())
		return nil
	}

	bus := events.NewBus(64)
	defer bus.Close()

	q := queue.New(bus, cfg.Threads(), cfg.SearchPaths())
	defer q.Close()

	logger := newLogger()

	var namesMu sync.Mutex
	names := map[string]string{}
	nameFor := func(ev events.Event) string {
		namesMu.Lock()
		defer namesMu.Unlock()
		if n, ok := names[ev.UUID.String()]; ok {
			return n
		}
		return ev.UUID.String()
	}

	unsubscribe := bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.KindSubmitted {
			if snap, ok := ev.Job.(*job.Snapshot); ok {
				namesMu.Lock()
				names[ev.UUID.String()] = snap.Name
				namesMu.Unlock()
			}
		}
		renderEvent(logger, ev, nameFor)
	})
	defer unsubscribe()

	submitted, err := expansion.Expand(q, p, files, expansion.Options{
		OutputDir:     cfg.SaveTo(),
		CreateFolders: cfg.CreateFolders(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %d job(s)\n", submitted)

	if err := q.Drain(context.Background()); err != nil {
		return err
	}

	return summarize(cmd, q)
}

func summarize(cmd *cobra.Command, q *queue.Queue) error {
	counts := map[job.Status]int{}
	for _, snap := range q.Jobs() {
		counts[snap.Status]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "completed=%d failed=%d dependency=%d stopped=%d\n",
		counts[job.StatusCompleted], counts[job.StatusFailed], counts[job.StatusDependency], counts[job.StatusStopped])
	if counts[job.StatusFailed] > 0 || counts[job.StatusDependency] > 0 {
		return errJobsFailed
	}
	return nil
}

// listFiles returns every entry directly under dir that is not a
// directory, sorted by filename (os.ReadDir order), matching the original's
// drop-folder semantics (non-recursive: a dropped folder's own contents, not
// nested folders).
func listFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
