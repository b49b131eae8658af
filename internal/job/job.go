// Package job implements the central entity of the queue (spec C2): a
// thread-safe, mutable record describing one unit of work and its
// observable lifecycle state.
package job

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikaelsundell/jobqueue/internal/events"
	"github.com/mikaelsundell/jobqueue/internal/jobid"
	"github.com/mikaelsundell/jobqueue/internal/logbuf"
)

// Snapshot is a by-value copy of a Job's attributes at the moment it was
// taken. Getters return snapshots (or individual fields); nothing handed to
// a caller aliases Job's internal state.
type Snapshot struct {
	UUID      jobid.ID
	HumanID   string
	Created   time.Time
	Name      string
	Filename  string
	Command   string
	Args      []string
	WorkDir   string
	OutputDir string
	DependsOn *jobid.ID
	PID       int
	Priority  int
	Status    Status
	Log       string
}

// Job is the central entity described in spec §3. Every setter that
// actually changes a field emits a KindFieldChanged event on bus (if
// non-nil); duplicate assignments are silently dropped.
type Job struct {
	bus *events.Bus

	// submitted gates emitField: a Job's bus is wired at construction (so the
	// Queue can hand it around before Submit), but no field-change event may
	// reach observers until Submit has announced KindSubmitted for it. Queue
	// calls MarkSubmitted at exactly that point.
	submitted atomic.Bool

	uuid    jobid.ID
	humanID string
	created time.Time

	mu        sync.RWMutex
	name      string
	filename  string
	command   string
	args      []string
	workDir   string
	outputDir string
	dependsOn *jobid.ID // immutable once set at submission, but guarded for read consistency
	pid       int
	priority  int
	status    Status

	log *logbuf.Buffer
}

// New constructs a Job with a fresh, permanent uuid. bus may be nil, in
// which case the job never emits events (useful in tests).
func New(bus *events.Bus, humanID, name, filename, command string, args []string, workDir, outputDir string, priority int) (*Job, error) {
	id, err := jobid.New()
	if err != nil {
		return nil, err
	}

	return &Job{
		bus:       bus,
		uuid:      id,
		humanID:   humanID,
		created:   time.Now(),
		name:      name,
		filename:  filename,
		command:   command,
		args:      append([]string(nil), args...),
		workDir:   workDir,
		outputDir: outputDir,
		priority:  priority,
		status:    StatusWaiting,
		log:       &logbuf.Buffer{},
	}, nil
}

// UUID returns the job's permanent unique identifier.
func (j *Job) UUID() jobid.ID { return j.uuid }

// HumanID returns the preset-scoped task id this job was expanded from, if
// any.
func (j *Job) HumanID() string { return j.humanID }

// Created returns the job's creation timestamp, used to break priority ties.
func (j *Job) Created() time.Time { return j.created }

func (j *Job) Name() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.name
}

func (j *Job) Filename() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.filename
}

func (j *Job) Command() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.command
}

func (j *Job) Args() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]string(nil), j.args...)
}

func (j *Job) WorkDir() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.workDir
}

func (j *Job) OutputDir() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outputDir
}

// DependsOn returns the uuid of the job this one depends on, and whether
// one is set at all.
func (j *Job) DependsOn() (jobid.ID, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.dependsOn == nil {
		return jobid.ID{}, false
	}
	return *j.dependsOn, true
}

func (j *Job) PID() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.pid
}

func (j *Job) Priority() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.priority
}

func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) Log() string {
	j.mu.RLock()
	l := j.log
	j.mu.RUnlock()
	return l.String()
}

// Snapshot returns a consistent by-value copy of every attribute.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var dependsOn *jobid.ID
	if j.dependsOn != nil {
		cp := *j.dependsOn
		dependsOn = &cp
	}

	return Snapshot{
		UUID:      j.uuid,
		HumanID:   j.humanID,
		Created:   j.created,
		Name:      j.name,
		Filename:  j.filename,
		Command:   j.command,
		Args:      append([]string(nil), j.args...),
		WorkDir:   j.workDir,
		OutputDir: j.outputDir,
		DependsOn: dependsOn,
		PID:       j.pid,
		Priority:  j.priority,
		Status:    j.status,
		Log:       j.log.String(),
	}
}

func (j *Job) emitField(field events.FieldKind, value any) {
	if j.bus == nil || !j.submitted.Load() {
		return
	}
	j.bus.Emit(events.Event{
		Kind:  events.KindFieldChanged,
		UUID:  j.uuid,
		Field: field,
		Value: value,
	})
}

// MarkSubmitted records that Queue.Submit has announced this job via
// KindSubmitted. Before this is called, every setter below still updates the
// job's state (so a caller assembling a job can freely set its dependency,
// status, or log ahead of submission) but emitField suppresses the
// corresponding event, so no observer ever sees a field-change event for a
// job it hasn't been told exists yet (spec §4.6 invariant (a)).
func (j *Job) MarkSubmitted() {
	j.submitted.Store(true)
}

// SetDependsOn may only be called once, before the job is submitted; it is
// immutable afterwards by convention of the Queue (Job itself does not
// enforce submission state).
func (j *Job) SetDependsOn(id jobid.ID) {
	j.mu.Lock()
	if j.dependsOn != nil && *j.dependsOn == id {
		j.mu.Unlock()
		return
	}
	cp := id
	j.dependsOn = &cp
	j.mu.Unlock()
	j.emitField(events.FieldDependsOn, id)
}

func (j *Job) SetPID(pid int) {
	j.mu.Lock()
	if j.pid == pid {
		j.mu.Unlock()
		return
	}
	j.pid = pid
	j.mu.Unlock()
	j.emitField(events.FieldPID, pid)
}

func (j *Job) SetPriority(priority int) {
	j.mu.Lock()
	if j.priority == priority {
		j.mu.Unlock()
		return
	}
	j.priority = priority
	j.mu.Unlock()
	j.emitField(events.FieldPriority, priority)
}

// SetStatus transitions status. Duplicate assignments (new == current) are
// silently dropped so observers never see a storm of no-op transitions.
func (j *Job) SetStatus(status Status) {
	j.mu.Lock()
	if j.status == status {
		j.mu.Unlock()
		return
	}
	j.status = status
	j.mu.Unlock()
	j.emitField(events.FieldStatus, status)
}

// AppendLog appends a line to the job's accumulated log and announces the
// change. Appending the empty string is a no-op and emits nothing.
func (j *Job) AppendLog(s string) {
	if s == "" {
		return
	}
	j.mu.RLock()
	l := j.log
	j.mu.RUnlock()
	l.WriteString(s)
	j.emitField(events.FieldLog, s)
}

// ResetLog discards everything written so far and starts a new log,
// replacing it with header. Used by Queue.Start when restarting a Stopped
// job (spec §4.5).
func (j *Job) ResetLog(header string) {
	j.mu.Lock()
	j.log = &logbuf.Buffer{}
	j.mu.Unlock()
	j.AppendLog(header)
}
