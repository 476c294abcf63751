// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package syncer

import (
	"context"
	"log/slog"
	"time"
)

// RetryWithBackoff runs op up to maxAttempts times, doubling the delay after
// each failure starting from baseDelay. Provider fetches and downloads go
// through here so transient API errors do not fail a document. The context is
// checked before every attempt and during every backoff sleep; cancellation
// returns ctx.Err() rather than the last operation error. A nil logger falls
// back to slog.Default().
func RetryWithBackoff(ctx context.Context, logger *slog.Logger, op func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		logger.Debug("attempt failed, backing off",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
