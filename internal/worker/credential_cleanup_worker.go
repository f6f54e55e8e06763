package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiredCredentialStore removes credentials past their expiry.
type ExpiredCredentialStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CredentialCleanupWorker purges expired rows from the Postgres credential
// store on a fixed interval. Reads already ignore expired rows; this only
// keeps the table small.
type CredentialCleanupWorker struct {
	store    ExpiredCredentialStore
	interval time.Duration
}

// NewCredentialCleanupWorker constructs a CredentialCleanupWorker.
func NewCredentialCleanupWorker(store ExpiredCredentialStore, interval time.Duration) *CredentialCleanupWorker {
	return &CredentialCleanupWorker{
		store:    store,
		interval: interval,
	}
}

// Start begins the cleanup loop and listens for context cancellation.
func (w *CredentialCleanupWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting credential cleanup worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Credential cleanup worker stopped")
			return
		}
	}
}

func (w *CredentialCleanupWorker) run(ctx context.Context) {
	n, err := w.store.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete expired credentials")
		return
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Msg("Expired credentials deleted")
	}
}
