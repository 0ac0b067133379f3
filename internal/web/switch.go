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

package web

import (
	"context"
	"fmt"
	"sync/atomic"

	"offlinecache/internal/common"
)

// Switch wraps a Fetcher with an online/offline toggle. While offline
// every fetch fails the way a disconnected network does.
type Switch struct {
	next    Fetcher
	offline atomic.Bool
}

// NewSwitch creates an online Switch in front of next.
func NewSwitch(next Fetcher) *Switch {
	return &Switch{next: next}
}

// SetOffline toggles the simulated network state.
func (s *Switch) SetOffline(offline bool) {
	s.offline.Store(offline)
}

// Offline reports the simulated network state.
func (s *Switch) Offline() bool {
	return s.offline.Load()
}

// Fetch implements Fetcher.
func (s *Switch) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if s.offline.Load() {
		return nil, fmt.Errorf("%w: offline", common.ErrNetworkFailed)
	}
	return s.next.Fetch(ctx, req)
}
