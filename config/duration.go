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

package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration reads a config duration written either as a Go duration
// string ("5s", "2m30s") or as a number of seconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = jsonDuration(parsed)
	case float64:
		*d = jsonDuration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %s: want a string like \"5s\" or a number of seconds", string(data))
	}
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (q *QueueConfig) UnmarshalJSON(data []byte) error {
	type alias QueueConfig
	aux := struct {
		*alias
		DequeueTimeout *jsonDuration `json:"dequeue_timeout"`
		BackoffInitial *jsonDuration `json:"backoff_initial"`
		BackoffMax     *jsonDuration `json:"backoff_max"`
	}{
		alias:          (*alias)(q),
		DequeueTimeout: (*jsonDuration)(&q.DequeueTimeout),
		BackoffInitial: (*jsonDuration)(&q.BackoffInitial),
		BackoffMax:     (*jsonDuration)(&q.BackoffMax),
	}
	return json.Unmarshal(data, &aux)
}

func (q QueueConfig) MarshalJSON() ([]byte, error) {
	type alias QueueConfig
	return json.Marshal(struct {
		alias
		DequeueTimeout jsonDuration `json:"dequeue_timeout"`
		BackoffInitial jsonDuration `json:"backoff_initial"`
		BackoffMax     jsonDuration `json:"backoff_max"`
	}{
		alias:          alias(q),
		DequeueTimeout: jsonDuration(q.DequeueTimeout),
		BackoffInitial: jsonDuration(q.BackoffInitial),
		BackoffMax:     jsonDuration(q.BackoffMax),
	})
}

func (i *InvoicingConfig) UnmarshalJSON(data []byte) error {
	type alias InvoicingConfig
	aux := struct {
		*alias
		Timeout *jsonDuration `json:"timeout"`
	}{
		alias:   (*alias)(i),
		Timeout: (*jsonDuration)(&i.Timeout),
	}
	return json.Unmarshal(data, &aux)
}

func (i InvoicingConfig) MarshalJSON() ([]byte, error) {
	type alias InvoicingConfig
	return json.Marshal(struct {
		alias
		Timeout jsonDuration `json:"timeout"`
	}{
		alias:   alias(i),
		Timeout: jsonDuration(i.Timeout),
	})
}

func (r *ReconciliationConfig) UnmarshalJSON(data []byte) error {
	type alias ReconciliationConfig
	aux := struct {
		*alias
		Interval       *jsonDuration `json:"interval"`
		StuckThreshold *jsonDuration `json:"stuck_threshold"`
	}{
		alias:          (*alias)(r),
		Interval:       (*jsonDuration)(&r.Interval),
		StuckThreshold: (*jsonDuration)(&r.StuckThreshold),
	}
	return json.Unmarshal(data, &aux)
}

func (r ReconciliationConfig) MarshalJSON() ([]byte, error) {
	type alias ReconciliationConfig
	return json.Marshal(struct {
		alias
		Interval       jsonDuration `json:"interval"`
		StuckThreshold jsonDuration `json:"stuck_threshold"`
	}{
		alias:          alias(r),
		Interval:       jsonDuration(r.Interval),
		StuckThreshold: jsonDuration(r.StuckThreshold),
	})
}

func (c *CatalogConfig) UnmarshalJSON(data []byte) error {
	type alias CatalogConfig
	aux := struct {
		*alias
		CacheTTL *jsonDuration `json:"cache_ttl"`
	}{
		alias:    (*alias)(c),
		CacheTTL: (*jsonDuration)(&c.CacheTTL),
	}
	return json.Unmarshal(data, &aux)
}

func (c CatalogConfig) MarshalJSON() ([]byte, error) {
	type alias CatalogConfig
	return json.Marshal(struct {
		alias
		CacheTTL jsonDuration `json:"cache_ttl"`
	}{
		alias:    alias(c),
		CacheTTL: jsonDuration(c.CacheTTL),
	})
}
