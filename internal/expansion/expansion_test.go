package expansion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelsundell/jobqueue/internal/job"
	"github.com/mikaelsundell/jobqueue/internal/jobid"
	"github.com/mikaelsundell/jobqueue/internal/preset"
)

// fakeQueue is a minimal Submitter that just records constructed jobs and
// submissions in order, enough to exercise Expansion without a real
// scheduler.
type fakeQueue struct {
	created   []*job.Job
	submitted []*job.Job
}

func (q *fakeQueue) NewJob(humanID, name, filename, command string, args []string, workDir, outputDir string, priority int) (*job.Job, error) {
	j, err := job.New(nil, humanID, name, filename, command, args, workDir, outputDir, priority)
	if err == nil {
		q.created = append(q.created, j)
	}
	return j, err
}

func (q *fakeQueue) Submit(j *job.Job, dependsOn *jobid.ID) (jobid.ID, error) {
	if dependsOn != nil {
		j.SetDependsOn(*dependsOn)
	}
	j.MarkSubmitted()
	q.submitted = append(q.submitted, j)
	return j.UUID(), nil
}

func taskPreset(tasks ...preset.Task) *preset.Preset {
	return preset.New("test", tasks)
}

func TestExpandSingleTaskNoDependency(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	p := taskPreset(preset.Task{ID: "t1", Name: "Convert", Command: "convert %inputfile% %outputfile%", Extension: "jpg", Arguments: "-q"})
	q := &fakeQueue{}

	n, err := Expand(q, p, []string{"/tmp/in/photo.png"}, Options{OutputDir: "/tmp/out"})
	require.NoError(err)
	assert.Equal(1, n)
	require.Len(q.submitted, 1)
	assert.Equal(job.StatusWaiting, q.submitted[0].Status())
}

func TestExpandDependencyChain(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	p := taskPreset(
		preset.Task{ID: "a", Name: "A", Command: "false", Extension: "x", Arguments: "-"},
		preset.Task{ID: "b", Name: "B", Command: "false", Extension: "x", Arguments: "-", DependsOn: "a"},
		preset.Task{ID: "c", Name: "C", Command: "false", Extension: "x", Arguments: "-", DependsOn: "b"},
	)
	q := &fakeQueue{}

	n, err := Expand(q, p, []string{"/tmp/in/file.dat"}, Options{OutputDir: "/tmp/out"})
	require.NoError(err)
	assert.Equal(3, n)
	require.Len(q.submitted, 3)

	byHuman := map[string]*job.Job{}
	for _, j := range q.submitted {
		byHuman[j.HumanID()] = j
	}

	depB, ok := byHuman["b"].DependsOn()
	require.True(ok)
	assert.Equal(byHuman["a"].UUID(), depB)

	depC, ok := byHuman["c"].DependsOn()
	require.True(ok)
	assert.Equal(byHuman["b"].UUID(), depC)
}

func TestExpandMissingDependencyFailsWithoutSubmitting(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	// preset.Read would normally reject an unresolved dependson, but a
	// caller constructing tasks directly can still produce one.
	p := taskPreset(
		preset.Task{ID: "b", Name: "B", Command: "false", Extension: "x", Arguments: "-", DependsOn: "missing"},
	)
	q := &fakeQueue{}

	n, err := Expand(q, p, []string{"/tmp/in/file.dat"}, Options{OutputDir: "/tmp/out"})
	require.NoError(err)
	assert.Equal(0, n)
	assert.Empty(q.submitted)
	require.Len(q.created, 1)
	assert.Equal(job.StatusFailed, q.created[0].Status())
	assert.Contains(q.created[0].Log(), "Missing dependency")
}

func TestExpandNoPreset(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	_, err := Expand(q, nil, []string{"f"}, Options{})
	assert.ErrorIs(t, err, ErrNoPreset)
}

func TestExpandNoFiles(t *testing.T) {
	t.Parallel()
	p := taskPreset(preset.Task{ID: "a", Name: "A", Command: "c", Extension: "e", Arguments: "-"})
	q := &fakeQueue{}
	_, err := Expand(q, p, nil, Options{})
	assert.ErrorIs(t, err, ErrNoFiles)
}
