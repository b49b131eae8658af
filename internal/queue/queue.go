// Package queue implements the scheduler core (spec C5): a bounded worker
// pool that dispatches Jobs in priority/age order while honoring the
// dependency relationships Expansion (or a direct caller) establishes
// between them, and that reports every observable transition through the
// event bus (spec C6).
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mikaelsundell/jobqueue/internal/events"
	"github.com/mikaelsundell/jobqueue/internal/job"
	"github.com/mikaelsundell/jobqueue/internal/jobid"
	"github.com/mikaelsundell/jobqueue/internal/process"
)

// ErrNotFound is returned by the uuid-addressed operations when no job with
// that uuid is currently registered.
var ErrNotFound = errors.New("queue: job not found")

// Queue is the dependency-aware scheduler. The zero value is not usable;
// construct one with New.
type Queue struct {
	bus         *events.Bus
	searchPaths []string

	mu            sync.Mutex
	sem           *semaphore.Weighted
	active        int
	allJobs       map[jobid.ID]*job.Job
	waitingJobs   []*job.Job
	dependentJobs map[jobid.ID][]*job.Job
	completedJobs map[jobid.ID]bool
	removedJobs   map[jobid.ID]bool

	statusCh chan jobid.ID
	wg       sync.WaitGroup
	done     chan struct{}
	closeOne sync.Once
}

// New returns a running Queue with the given worker pool size (clamped to at
// least 1, mirroring the original's default single-threaded pool) and the
// bare-command search paths used to resolve a command that isn't an absolute
// path (spec §4.1/§7's CommandNotFound). bus may be nil in tests.
func New(bus *events.Bus, threads int, searchPaths []string) *Queue {
	if threads < 1 {
		threads = 1
	}

	q := &Queue{
		bus:           bus,
		searchPaths:   append([]string(nil), searchPaths...),
		sem:           semaphore.NewWeighted(int64(threads)),
		allJobs:       map[jobid.ID]*job.Job{},
		dependentJobs: map[jobid.ID][]*job.Job{},
		completedJobs: map[jobid.ID]bool{},
		removedJobs:   map[jobid.ID]bool{},
		statusCh:      make(chan jobid.ID, 64),
		done:          make(chan struct{}),
	}

	go q.controlLoop()

	return q
}

// Bus returns the event bus jobs on this queue announce themselves on.
func (q *Queue) Bus() *events.Bus { return q.bus }

// NewJob constructs a Job wired to this queue's bus, ready for Submit.
func (q *Queue) NewJob(humanID, name, filename, command string, args []string, workDir, outputDir string, priority int) (*job.Job, error) {
	return job.New(q.bus, humanID, name, filename, command, args, workDir, outputDir, priority)
}

func bannerFor(j *job.Job) string {
	return fmt.Sprintf("Uuid:\n%s\n\nCommand:\n%s %s\n", j.UUID().String(), j.Command(), strings.Join(j.Args(), " "))
}

// Submit registers j, optionally bound to dependsOn, and places it on the
// waiting set (if its dependency is already satisfied or there is none) or
// the dependency waitlist, then triggers a scheduling pass. Submit never
// blocks on the job's execution.
//
// dependsOn is applied here, before the job is marked submitted, rather than
// requiring the caller to call j.SetDependsOn beforehand: j's bus is already
// wired at construction, so setting it any earlier would fire a
// KindFieldChanged event for a job observers haven't been told about yet via
// KindSubmitted (spec §4.6 invariant (a)). A caller that wants a job
// recorded as failed without ever being scheduled should set its status
// before calling Submit: a job submitted in a terminal status is registered
// and announced but never placed on a schedulable set.
//
// A dependsOn that names a job which never enters the registry is not
// checked: the job stays in the dependency waitlist indefinitely, and it is
// the caller's responsibility not to submit such a reference.
func (q *Queue) Submit(j *job.Job, dependsOn *jobid.ID) (jobid.ID, error) {
	if j == nil {
		return jobid.ID{}, errors.New("queue: job is nil")
	}
	if dependsOn != nil {
		j.SetDependsOn(*dependsOn)
	}
	uuid := j.UUID()

	q.mu.Lock()
	q.allJobs[uuid] = j
	if !j.Status().Terminal() {
		if dependson, ok := j.DependsOn(); ok && !q.completedJobs[dependson] {
			q.dependentJobs[dependson] = append(q.dependentJobs[dependson], j)
		} else {
			q.waitingJobs = append(q.waitingJobs, j)
		}
	}
	// safe to clear here: every removal this bus has already delivered the
	// KindRemoved event for by the time a new submission can observe it
	q.removedJobs = map[jobid.ID]bool{}
	q.mu.Unlock()

	j.MarkSubmitted()
	q.emitSubmitted(j)
	j.AppendLog(bannerFor(j))

	slog.Info("job submitted", "uuid", uuid.String(), "command", j.Command())
	q.schedulePass()
	return uuid, nil
}

// Start moves a Stopped job back onto the waiting set with a fresh log.
// Any other status is a no-op.
func (q *Queue) Start(uuid jobid.ID) error {
	q.mu.Lock()
	j, ok := q.allJobs[uuid]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if j.Status() != job.StatusStopped {
		q.mu.Unlock()
		return nil
	}
	j.SetStatus(job.StatusWaiting)
	q.waitingJobs = append(q.waitingJobs, j)
	q.mu.Unlock()

	j.ResetLog(bannerFor(j))
	q.schedulePass()
	return nil
}

// Stop transitions a Running job to Stopped and kills its recorded pid
// without waiting for it to be reaped; the worker goroutine still owns the
// wait and will observe Stopped rather than cascading a failure. Any other
// status is a no-op.
func (q *Queue) Stop(uuid jobid.ID) error {
	q.mu.Lock()
	j, ok := q.allJobs[uuid]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if j.Status() != job.StatusRunning {
		q.mu.Unlock()
		return nil
	}
	j.SetStatus(job.StatusStopped)
	pid := j.PID()
	q.mu.Unlock()

	j.AppendLog(bannerFor(j))
	if pid > 0 {
		if err := process.KillPID(pid); err != nil {
			slog.Warn("failed to signal stopped job", "uuid", uuid.String(), "pid", pid, "err", err)
		}
	}
	q.schedulePass()
	return nil
}

// Restart moves uuid, and every job transitively depending on it, back to
// Waiting (skipping any that are currently Running), per spec §8's restart
// closure property.
func (q *Queue) Restart(uuid jobid.ID) error {
	q.mu.Lock()
	q.restartLocked(uuid)
	q.mu.Unlock()

	q.schedulePass()
	return nil
}

func (q *Queue) restartLocked(uuid jobid.ID) {
	j, ok := q.allJobs[uuid]
	if !ok || j.Status() == job.StatusRunning {
		return
	}

	j.SetStatus(job.StatusWaiting)
	if dependson, hasDep := j.DependsOn(); hasDep {
		deps := q.dependentJobs[dependson]
		present := false
		for _, dj := range deps {
			if dj.UUID() == j.UUID() {
				present = true
				break
			}
		}
		if !present {
			q.dependentJobs[dependson] = append(deps, j)
		}
	} else {
		q.waitingJobs = append(q.waitingJobs, j)
	}
	j.ResetLog(bannerFor(j))

	for id, other := range q.allJobs {
		if d, hasDep := other.DependsOn(); hasDep && d == uuid {
			q.restartLocked(id)
		}
	}
}

// Remove deletes uuid from the registry and recursively removes every job
// that (transitively) depends on it. A Running job is killed first. Removal
// is reported as both a processed and a removed event, matching the
// original's bookkeeping: a removed job is never "processed" in the sense of
// completing, but observers tracking outstanding jobs need the signal that
// it left the Running set.
func (q *Queue) Remove(uuid jobid.ID) error {
	q.mu.Lock()
	j, ok := q.allJobs[uuid]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}

	delete(q.allJobs, uuid)
	q.removedJobs[uuid] = true
	status := j.Status()
	pid := j.PID()

	var children []jobid.ID
	for id, other := range q.allJobs {
		if d, hasDep := other.DependsOn(); hasDep && d == uuid {
			children = append(children, id)
		}
	}
	delete(q.dependentJobs, uuid)
	if parent, hasDep := j.DependsOn(); hasDep {
		siblings := q.dependentJobs[parent]
		for i, dj := range siblings {
			if dj.UUID() == uuid {
				siblings = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		if len(siblings) == 0 {
			delete(q.dependentJobs, parent)
		} else {
			q.dependentJobs[parent] = siblings
		}
	}
	for i, wj := range q.waitingJobs {
		if wj.UUID() == uuid {
			q.waitingJobs = append(q.waitingJobs[:i], q.waitingJobs[i+1:]...)
			break
		}
	}
	delete(q.completedJobs, uuid)
	q.mu.Unlock()

	if status == job.StatusRunning && pid > 0 {
		if err := process.KillPID(pid); err != nil {
			slog.Warn("failed to signal removed job", "uuid", uuid.String(), "pid", pid, "err", err)
		}
	}

	q.emitProcessed(uuid)
	for _, c := range children {
		q.Remove(c)
	}
	q.emitRemoved(uuid)
	return nil
}

// SetThreads resizes the worker pool. Jobs already running against the old
// pool release against the semaphore they acquired from; only future
// scheduling passes see the new capacity.
func (q *Queue) SetThreads(threads int) {
	if threads < 1 {
		threads = 1
	}
	q.mu.Lock()
	q.sem = semaphore.NewWeighted(int64(threads))
	q.mu.Unlock()
	q.schedulePass()
}

// Job returns a snapshot of the job registered under uuid.
func (q *Queue) Job(uuid jobid.ID) (job.Snapshot, bool) {
	q.mu.Lock()
	j, ok := q.allJobs[uuid]
	q.mu.Unlock()
	if !ok {
		return job.Snapshot{}, false
	}
	return j.Snapshot(), true
}

// Jobs returns a snapshot of every currently registered job, in no
// particular order.
func (q *Queue) Jobs() []job.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]job.Snapshot, 0, len(q.allJobs))
	for _, j := range q.allJobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Idle reports whether the queue has no waiting, dependent, or running
// jobs left.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waitingJobs) == 0 && len(q.dependentJobs) == 0 && q.active == 0
}

// Drain blocks until Idle or ctx is done. It is an ambient convenience for
// the CLI's run command, which submits a batch and wants to report a final
// summary rather than exiting while work is still in flight; it is not part
// of the dependency-cascade semantics above.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.Idle() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the control-plane goroutine and waits for any in-flight
// workers to finish. It does not cancel running jobs; call Stop on each
// first if that's wanted.
func (q *Queue) Close() {
	q.closeOne.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}

func (q *Queue) emitSubmitted(j *job.Job) {
	if q.bus == nil {
		return
	}
	snap := j.Snapshot()
	q.bus.Emit(events.Event{Kind: events.KindSubmitted, UUID: j.UUID(), Job: &snap})
}

func (q *Queue) emitProcessed(uuid jobid.ID) {
	if q.bus == nil {
		return
	}
	q.bus.Emit(events.Event{Kind: events.KindProcessed, UUID: uuid})
}

func (q *Queue) emitRemoved(uuid jobid.ID) {
	if q.bus == nil {
		return
	}
	q.bus.Emit(events.Event{Kind: events.KindRemoved, UUID: uuid})
}

// controlLoop is the single dedicated goroutine that owns the control-plane
// bookkeeping triggered by a worker finishing: marking a job Completed
// unblocks its direct dependents, marking it Failed cascades failure
// downward. Running it on one goroutine means statusChanged-equivalent work
// never races with itself.
func (q *Queue) controlLoop() {
	for {
		select {
		case uuid := <-q.statusCh:
			q.onStatusChanged(uuid)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) onStatusChanged(uuid jobid.ID) {
	q.mu.Lock()
	if q.removedJobs[uuid] {
		q.mu.Unlock()
		return
	}
	j, ok := q.allJobs[uuid]
	if !ok {
		q.mu.Unlock()
		return
	}

	switch j.Status() {
	case job.StatusCompleted:
		q.completedJobs[uuid] = true
		if deps, ok := q.dependentJobs[uuid]; ok {
			q.waitingJobs = append(q.waitingJobs, deps...)
			delete(q.dependentJobs, uuid)
		}
	case job.StatusFailed:
		q.failDependentsLocked(uuid)
	}
	q.mu.Unlock()

	q.schedulePass()
}

// failDependentsLocked cascades a Failed status downward to every job
// waiting on dependsonUUID, and recursively to their own dependents, per
// spec §4.5's failure cascade. Must be called with mu held.
func (q *Queue) failDependentsLocked(dependsonUUID jobid.ID) {
	deps, ok := q.dependentJobs[dependsonUUID]
	if !ok {
		return
	}
	delete(q.dependentJobs, dependsonUUID)

	for _, dj := range deps {
		dj.AppendLog(fmt.Sprintf("\nStatus:\nCommand cancelled, dependent job failed: %s\n", dependsonUUID.String()))
		dj.SetStatus(job.StatusFailed)
		q.emitProcessed(dj.UUID())
		q.failDependentsLocked(dj.UUID())
	}
}

// markAncestorsDependency walks the dependson chain starting at
// dependsonUUID (the direct prerequisite of the job that just failed,
// identified by childUUID), marking each ancestor that is currently
// Completed as Dependency with an explanatory log line (spec §4.5 step 6,
// §9's "ancestors already Completed" open question). It stops at the first
// ancestor that is not Completed; per spec that ancestor, and anything
// further upstream of it, is unaffected.
func (q *Queue) markAncestorsDependency(childUUID, dependsonUUID jobid.ID) {
	anc, ok := q.allJobs[dependsonUUID]
	if !ok || anc.Status() != job.StatusCompleted {
		return
	}

	anc.AppendLog(fmt.Sprintf("\nDependent error:\nDependent job failed: %s\n", childUUID.String()))
	anc.SetStatus(job.StatusDependency)

	if next, hasDep := anc.DependsOn(); hasDep {
		q.markAncestorsDependency(dependsonUUID, next)
	}
}

// pickNextLocked selects and removes the highest-priority, oldest-eligible
// job from waitingJobs. Must be called with mu held and waitingJobs
// non-empty.
func (q *Queue) pickNextLocked() *job.Job {
	best := 0
	for i := 1; i < len(q.waitingJobs); i++ {
		cand := q.waitingJobs[i]
		sel := q.waitingJobs[best]
		if cand.Priority() > sel.Priority() {
			best = i
		} else if cand.Priority() == sel.Priority() && cand.Created().Before(sel.Created()) {
			best = i
		}
	}
	j := q.waitingJobs[best]
	q.waitingJobs = append(q.waitingJobs[:best], q.waitingJobs[best+1:]...)
	return j
}

// schedulePass hands as many waiting jobs as the pool has free capacity for
// to new worker goroutines. It is cheap to call redundantly: every control
// operation above calls it after changing the waiting set, and it's a no-op
// when there's nothing to do or no capacity free.
func (q *Queue) schedulePass() {
	for {
		q.mu.Lock()
		if len(q.waitingJobs) == 0 {
			q.mu.Unlock()
			return
		}
		sem := q.sem
		q.mu.Unlock()

		if !sem.TryAcquire(1) {
			return
		}

		q.mu.Lock()
		if len(q.waitingJobs) == 0 {
			q.mu.Unlock()
			sem.Release(1)
			return
		}
		j := q.pickNextLocked()
		q.active++
		q.mu.Unlock()

		q.wg.Add(1)
		go func(j *job.Job, sem *semaphore.Weighted) {
			defer q.wg.Done()
			defer sem.Release(1)
			defer func() {
				q.mu.Lock()
				q.active--
				q.mu.Unlock()
			}()
			q.runJob(j)
		}(j, sem)
	}
}

// resolveCommand implements spec §4.1(a)/(b): an absolute path must exist as
// given; a bare name is resolved against the queue's search paths, falling
// back to the Running attempt (which uses process.Exists, i.e. $PATH) if no
// search path has it.
func (q *Queue) resolveCommand(command string) (string, error) {
	if filepath.IsAbs(command) {
		if _, err := os.Stat(command); err != nil {
			return "", &process.CommandError{Command: command, Bare: false}
		}
		return command, nil
	}

	for _, dir := range q.searchPaths {
		candidate := filepath.Clean(filepath.Join(dir, command))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return command, nil
}

// runJob is the worker body (spec §4.5): resolve and validate the command,
// ensure the output directory exists, run the process to completion (or
// until externally stopped), and record the final status and log.
func (q *Queue) runJob(j *job.Job) {
	resolved, err := q.resolveCommand(j.Command())
	if err != nil {
		j.AppendLog(fmt.Sprintf("\nCommand error:\n%s\n", err.Error()))
		j.SetStatus(job.StatusFailed)
		q.finishJob(j)
		return
	}

	j.SetStatus(job.StatusRunning)

	if outputDir := j.OutputDir(); outputDir != "" {
		info, statErr := os.Stat(outputDir)
		switch {
		case os.IsNotExist(statErr):
			if mkErr := os.MkdirAll(outputDir, 0o755); mkErr != nil {
				j.AppendLog(fmt.Sprintf("\nStatus:\nCould not create directory: %s\n", outputDir))
				j.SetStatus(job.StatusFailed)
				q.finishJob(j)
				return
			}
		case statErr == nil && !info.IsDir():
			j.AppendLog(fmt.Sprintf("\nStatus:\nOutput exists but is not a directory: %s\n", outputDir))
			j.SetStatus(job.StatusFailed)
			q.finishJob(j)
			return
		case statErr != nil:
			j.AppendLog(fmt.Sprintf("\nStatus:\nCould not create directory: %s\n", outputDir))
			j.SetStatus(job.StatusFailed)
			q.finishJob(j)
			return
		}
	}

	if !process.Exists(resolved) {
		err := &process.CommandError{Command: resolved, Bare: true}
		j.AppendLog(fmt.Sprintf("\nCommand error:\n%s\n", err.Error()))
		j.SetStatus(job.StatusFailed)
		q.finishJob(j)
		return
	}

	proc := process.New()
	ctx := context.Background()
	pid, err := proc.Run(ctx, resolved, j.Args(), j.WorkDir())
	if err != nil {
		j.AppendLog(fmt.Sprintf("\nCommand error:\n%s\n", err.Error()))
		j.SetStatus(job.StatusFailed)
		q.finishJob(j)
		return
	}
	j.SetPID(pid)
	j.AppendLog(fmt.Sprintf("\nProcess id:\n%d\n", pid))

	slog.Info("job running", "uuid", j.UUID().String(), "pid", pid)

	ok := proc.Wait()
	j.SetPID(0)

	if out := proc.Stdout(); out != "" {
		j.AppendLog(fmt.Sprintf("\nCommand output:\n%s", out))
	}
	if errOut := proc.Stderr(); errOut != "" {
		j.AppendLog(fmt.Sprintf("\nCommand error:\n%s", errOut))
	}

	if ok {
		j.AppendLog("\nStatus:\nCommand completed\n")
		j.SetStatus(job.StatusCompleted)
	} else if j.Status() == job.StatusStopped {
		j.AppendLog("\nStatus:\nCommand stopped\n")
	} else {
		j.AppendLog("\nStatus:\nCommand failed\n")
		j.AppendLog(fmt.Sprintf("\nExit code:\n%d\n", proc.ExitCode()))
		j.AppendLog(fmt.Sprintf("\nExit status:\n%s\n", proc.ExitStatus()))
		j.SetStatus(job.StatusFailed)
	}

	q.finishJob(j)
}

// finishJob implements the worker's tail (spec §4.5 steps 6-8): mark
// upstream ancestors Dependency on a failure, announce processed unless the
// job was Stopped, and hand control-plane bookkeeping to the dedicated
// goroutine.
func (q *Queue) finishJob(j *job.Job) {
	status := j.Status()

	if status == job.StatusFailed {
		if dependson, ok := j.DependsOn(); ok {
			q.mu.Lock()
			q.markAncestorsDependency(j.UUID(), dependson)
			q.mu.Unlock()
		}
	}

	if status != job.StatusStopped {
		q.emitProcessed(j.UUID())
	}

	slog.Info("job finished", "uuid", j.UUID().String(), "status", status.String())

	select {
	case q.statusCh <- j.UUID():
	case <-q.done:
	}
}
