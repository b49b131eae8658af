package logbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWrite(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	require := require.New(t)

	var buf Buffer
	n, err := buf.WriteString("hello ")
	require.NoError(err)
	assert.Equal(6, n)

	n, err = buf.Write([]byte("world"))
	require.NoError(err)
	assert.Equal(5, n)

	assert.Equal("hello world", buf.String())
	assert.Equal(11, buf.Len())
}

func TestBufferEmpty(t *testing.T) {
	t.Parallel()
	var buf Buffer
	assert.Equal(t, "", buf.String())
	assert.Equal(t, 0, buf.Len())
}

func TestBufferConcurrentWrites(t *testing.T) {
	t.Parallel()
	var buf Buffer

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = buf.WriteString("x")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, buf.Len())
}
