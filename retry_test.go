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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/nexus/config"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := NewRetryPolicy(config.QueueConfig{MaxAttempts: 5, BackoffInitial: time.Second, BackoffMax: time.Minute})

	for attempts := 0; attempts < 5; attempts++ {
		assert.True(t, p.ShouldRetry(attempts), "attempt %d", attempts)
	}
	assert.False(t, p.ShouldRetry(5))
	assert.False(t, p.ShouldRetry(6))
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Initial: 2 * time.Second, Max: 10 * time.Second, Jitter: 0.2}

	tests := []struct {
		retry    int
		min, max time.Duration
	}{
		{retry: 1, min: 1600 * time.Millisecond, max: 2400 * time.Millisecond},
		{retry: 2, min: 3200 * time.Millisecond, max: 4800 * time.Millisecond},
		{retry: 3, min: 6400 * time.Millisecond, max: 9600 * time.Millisecond},
		{retry: 5, min: 8 * time.Second, max: 10 * time.Second},
	}

	for _, tt := range tests {
		delay := p.Delay(tt.retry)
		assert.GreaterOrEqual(t, delay, tt.min, "retry %d", tt.retry)
		assert.LessOrEqual(t, delay, tt.max, "retry %d", tt.retry)
	}
}

func TestRetryPolicyDelayWithoutJitter(t *testing.T) {
	p := RetryPolicy{Initial: time.Second, Max: time.Hour}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}
