package httpmw

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// releaser returns a held connection to the pool exactly once, no matter
// how many completion signals fire. Both normal completion and an abrupt
// client disconnect trigger it; the sync.Once guards the double-fire.
type releaser struct {
	once   sync.Once
	close  func() error
	logger zerolog.Logger
}

func newReleaser(close func() error, logger zerolog.Logger) *releaser {
	return &releaser{close: close, logger: logger}
}

func (r *releaser) release() {
	r.once.Do(func() {
		if err := r.close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			// The response has usually been sent by now; log, never
			// propagate into the response path.
			r.logger.Error().Err(err).Msg("failed to release audit session connection")
		}
	})
}
