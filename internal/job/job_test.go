package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelsundell/jobqueue/internal/events"
	"github.com/mikaelsundell/jobqueue/internal/jobid"
)

func newTestJob(t *testing.T, bus *events.Bus) *Job {
	t.Helper()
	j, err := New(bus, "t1", "convert", "in.png", "convert", []string{"in.png", "out.png"}, "/tmp", "/tmp/out", 0)
	require.NoError(t, err)
	return j
}

func TestJobGettersReturnCopies(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	j := newTestJob(t, nil)
	args := j.Args()
	args[0] = "mutated"

	assert.Equal("in.png", j.Args()[0], "Args must return a defensive copy")
}

func TestJobStatusDeduplicatesEvents(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	var mu chanCollector
	bus := events.NewBus(16)
	defer bus.Close()
	unsub := bus.Subscribe(mu.observe)
	defer unsub()

	j := newTestJob(t, bus)
	j.MarkSubmitted() // events are suppressed until the job is announced
	j.SetStatus(StatusRunning)
	j.SetStatus(StatusRunning) // no-op, must not emit twice
	j.SetStatus(StatusCompleted)

	waitForEvents(t, &mu, 2)

	statuses := mu.fieldValues(events.FieldStatus)
	assert.Equal([]any{StatusRunning, StatusCompleted}, statuses)
}

func TestJobFieldChangesSuppressedUntilSubmitted(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	var mu chanCollector
	bus := events.NewBus(16)
	defer bus.Close()
	unsub := bus.Subscribe(mu.observe)
	defer unsub()

	j := newTestJob(t, bus)

	id, err := jobid.New()
	require.NoError(t, err)
	j.SetDependsOn(id)
	j.SetStatus(StatusFailed)
	j.AppendLog("missing dependency\n")

	// nothing should have reached the bus yet: the job hasn't been
	// announced via KindSubmitted.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(0, mu.count())

	j.MarkSubmitted()
	j.SetStatus(StatusFailed) // already Failed, so still a no-op
	j.AppendLog("second line\n")

	waitForEvents(t, &mu, 1)
	assert.Empty(mu.fieldValues(events.FieldStatus), "no new status event: it was already Failed before MarkSubmitted")
	assert.Len(mu.fieldValues(events.FieldLog), 1)
}

func TestJobDependsOn(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	j := newTestJob(t, nil)
	_, ok := j.DependsOn()
	assert.False(ok)

	id, err := jobid.New()
	require.NoError(t, err)
	j.SetDependsOn(id)

	got, ok := j.DependsOn()
	assert.True(ok)
	assert.Equal(id, got)
}

func TestJobResetLog(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	j := newTestJob(t, nil)
	j.AppendLog("first run\n")
	assert.Contains(j.Log(), "first run")

	j.ResetLog("header\n")
	assert.Equal("header\n", j.Log())
}

func TestJobSnapshotIsConsistent(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	j := newTestJob(t, nil)
	j.SetPriority(5)
	j.SetStatus(StatusRunning)

	snap := j.Snapshot()
	assert.Equal(5, snap.Priority)
	assert.Equal(StatusRunning, snap.Status)
	assert.Equal(j.UUID(), snap.UUID)
}
