package httpmw

import (
	"bytes"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestReleaser_ReleasesExactlyOnce(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	rel := newReleaser(func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}, zerolog.Nop())

	// Normal completion and client disconnect can fire concurrently.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rel.release()
		}()
	}
	wg.Wait()
	rel.release()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestReleaser_IgnoresAlreadyReleasedConn(t *testing.T) {
	t.Parallel()

	var logBuf bytes.Buffer
	rel := newReleaser(func() error {
		return sql.ErrConnDone
	}, zerolog.New(&logBuf))

	rel.release()

	assert.Empty(t, logBuf.String())
}

func TestReleaser_LogsCloseFailure(t *testing.T) {
	t.Parallel()

	var logBuf bytes.Buffer
	rel := newReleaser(func() error {
		return errors.New("socket gone")
	}, zerolog.New(&logBuf))

	rel.release()

	assert.Contains(t, logBuf.String(), "failed to release audit session connection")
	assert.Contains(t, logBuf.String(), "socket gone")
}
