/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nexus

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jerry-enebeli/nexus/config"
)

// RetryPolicy decides whether a transiently failed job is retried and how long
// the retry waits.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Jitter      float64
}

func NewRetryPolicy(conf config.QueueConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: conf.MaxAttempts,
		Initial:     conf.BackoffInitial,
		Max:         conf.BackoffMax,
		Jitter:      0.2,
	}
}

// ShouldRetry reports whether a job that just failed at attempts may be
// re-enqueued. A job is executed at most MaxAttempts+1 times.
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Delay returns the wait before the given retry. Retry n waits roughly
// Initial * 2^(n-1), capped at Max and spread by Jitter.
func (p RetryPolicy) Delay(retry int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < retry; i++ {
		delay = b.NextBackOff()
	}
	if delay > p.Max {
		delay = p.Max
	}
	return delay
}
