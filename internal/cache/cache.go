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

// Package cache provides the in-memory cache storage used when the daemon
// runs with `storage: memory` and by tests.
//
// Design Principles:
// 1. Whole-snapshot writes - a stored response is always a complete clone
// 2. Last write wins - concurrent puts to one key need no ordering
//
// The persistent implementation lives in internal/storage.
package cache

import "os"

// Disabled turns every store into a no-op sink (puts dropped, matches
// miss). Set via OFFLINECACHE_CACHE=0 environment variable.
//
// This is useful for checking how pages behave with the network as the
// only source, without deleting any stored generation.
var Disabled = os.Getenv("OFFLINECACHE_CACHE") == "0"
