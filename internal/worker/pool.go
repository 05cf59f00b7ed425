package worker

import (
	"context"
	"sync"

	"igarchive/pkg/logger"
)

// Job is one unit of work keyed by profile username
type Job func(ctx context.Context, username string) error

// Pool runs per-profile jobs with bounded concurrency. Results are
// collected per username so the caller can report partial failures
// instead of aborting the whole batch.
type Pool struct {
	workers int
	logger  logger.Logger
}

// NewPool creates a pool with the given concurrency
func NewPool(workers int, log logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{workers: workers, logger: log}
}

// Run processes every username and returns the per-username errors.
// A cancelled context stops new work; jobs already running finish.
func (p *Pool) Run(ctx context.Context, usernames []string, job Job) map[string]error {
	queue := make(chan string)
	results := make(map[string]error, len(usernames))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for username := range queue {
				err := job(ctx, username)
				mu.Lock()
				results[username] = err
				mu.Unlock()
				if err != nil {
					p.logger.WithError(err).WarnWithFields("job failed", map[string]interface{}{
						"username": username,
					})
				}
			}
		}()
	}

	for _, username := range usernames {
		select {
		case <-ctx.Done():
			mu.Lock()
			results[username] = ctx.Err()
			mu.Unlock()
		case queue <- username:
		}
	}
	close(queue)
	wg.Wait()

	return results
}
