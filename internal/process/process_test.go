package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRunCompletes(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	p := New()
	pid, err := p.Run(context.Background(), "echo", []string{"hello"}, "")
	require.NoError(err)
	assert.Greater(pid, 0)

	ok := p.Wait()
	assert.True(ok)
	assert.Equal(0, p.ExitCode())
	assert.Equal(StatusNormal, p.ExitStatus())
	assert.Contains(p.Stdout(), "hello")
}

func TestProcessRunNonZeroExit(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	p := New()
	_, err := p.Run(context.Background(), "false", nil, "")
	require.NoError(err)

	ok := p.Wait()
	assert.False(ok)
	assert.Equal(1, p.ExitCode())
	assert.Equal(StatusNormal, p.ExitStatus())
}

func TestProcessKill(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	p := New()
	pid, err := p.Run(context.Background(), "sleep", []string{"30"}, "")
	require.NoError(err)
	assert.Greater(pid, 0)

	done := make(chan bool, 1)
	go func() { done <- p.Wait() }()

	require.NoError(p.Kill())

	select {
	case ok := <-done:
		assert.False(ok)
		assert.Equal(StatusCrash, p.ExitStatus())
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Kill")
	}
}

func TestExists(t *testing.T) {
	t.Parallel()
	assert.True(t, Exists("echo"))
	assert.False(t, Exists("definitely-not-a-real-command-xyz"))
}

func TestCommandErrorMessages(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	abs := &CommandError{Command: "/no/such/binary", Bare: false}
	assert.Contains(abs.Error(), "command path could not be found")

	bare := &CommandError{Command: "nosuchcmd", Bare: true}
	assert.Contains(bare.Error(), "make sure command can be found")
}
