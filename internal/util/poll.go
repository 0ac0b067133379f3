// Copyright 2026 OfflineCache Authors
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

package util

import (
	"context"
	"time"
)

const (
	defaultPollTimeout  = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// PollConfig bounds a wait on a condition such as the daemon socket
// appearing. Zero fields take the package defaults.
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// FastPollConfig is used while waiting for the daemon to come up.
func FastPollConfig() PollConfig {
	return PollConfig{Timeout: defaultPollTimeout, Interval: 25 * time.Millisecond}
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultPollTimeout
	}
	if c.Interval <= 0 {
		c.Interval = defaultPollInterval
	}
	return c
}

// PollUntil checks cond immediately and then once per interval until it
// holds. It returns ctx's error, or context.DeadlineExceeded after the
// timeout.
func PollUntil(ctx context.Context, cfg PollConfig, cond func() bool) error {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// WaitFixed polls cond every interval for up to n intervals and reports
// whether it held. The CLI uses it to wait on daemon start and stop.
func WaitFixed(n int, interval time.Duration, cond func() bool) bool {
	if n <= 0 {
		return cond()
	}
	cfg := PollConfig{Timeout: time.Duration(n) * interval, Interval: interval}
	return PollUntil(context.Background(), cfg, cond) == nil
}
