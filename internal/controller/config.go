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

package controller

import (
	"fmt"
	"net/url"
	"slices"

	log "github.com/sirupsen/logrus"
)

// DefaultGeneration is the cache generation used when none is configured.
const DefaultGeneration = "ai-blog-v1"

// DefaultOfflinePath is the document served to navigations when both
// network and cache miss.
const DefaultOfflinePath = "/offline.html"

// FontsStylesheet is the cross-origin stylesheet precached by default.
const FontsStylesheet = "https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&family=Space+Mono:wght@400;700&display=swap"

// DefaultPrecache returns the default precache manifest.
func DefaultPrecache() []string {
	return []string{
		"/",
		"/assets/css/main.css",
		"/assets/js/main.js",
		"/manifest.json",
		DefaultOfflinePath,
		FontsStylesheet,
	}
}

// NotificationConfig holds the presentation of push notifications.
type NotificationConfig struct {
	Title       string
	DefaultBody string
	Icon        string
	Badge       string
	Vibrate     []int
	Tag         string
}

// DefaultNotification returns the stock push notification presentation.
func DefaultNotification() NotificationConfig {
	return NotificationConfig{
		Title:       "AI Tech Blog",
		DefaultBody: "New update available",
		Icon:        "/assets/images/icon-192x192.png",
		Badge:       "/assets/images/icon-96x96.png",
		Vibrate:     []int{200, 100, 200},
		Tag:         "notification",
	}
}

// Config is the immutable configuration of one controller version.
type Config struct {
	Origin               *url.URL
	Generation           string
	Precache             []string
	OfflinePath          string
	NoCache              []string // gitignore-style URL path patterns
	SkipWaitingOnInstall bool
	FetchAttempts        uint // per precache URL; 0 or 1 means no retry
	Notification         NotificationConfig
}

// DefaultConfig returns the stock configuration for origin.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		Origin:               origin,
		Generation:           DefaultGeneration,
		Precache:             DefaultPrecache(),
		OfflinePath:          DefaultOfflinePath,
		SkipWaitingOnInstall: true,
		FetchAttempts:        1,
		Notification:         DefaultNotification(),
	}
}

// Validate checks cfg and fills defaults. The offline path is appended
// to the manifest when missing.
func (cfg *Config) Validate() error {
	if cfg.Origin == nil || cfg.Origin.Scheme == "" || cfg.Origin.Host == "" {
		return fmt.Errorf("origin must be an absolute URL")
	}
	if cfg.Generation == "" {
		return fmt.Errorf("generation must not be empty")
	}
	if cfg.OfflinePath == "" {
		cfg.OfflinePath = DefaultOfflinePath
	}
	if !slices.Contains(cfg.Precache, cfg.OfflinePath) {
		log.Warnf("[Controller] offline path %s missing from precache manifest, appending", cfg.OfflinePath)
		cfg.Precache = append(slices.Clone(cfg.Precache), cfg.OfflinePath)
	}

	def := DefaultNotification()
	if cfg.Notification.Title == "" {
		cfg.Notification.Title = def.Title
	}
	if cfg.Notification.DefaultBody == "" {
		cfg.Notification.DefaultBody = def.DefaultBody
	}
	if cfg.Notification.Icon == "" {
		cfg.Notification.Icon = def.Icon
	}
	if cfg.Notification.Badge == "" {
		cfg.Notification.Badge = def.Badge
	}
	if len(cfg.Notification.Vibrate) == 0 {
		cfg.Notification.Vibrate = def.Vibrate
	}
	if cfg.Notification.Tag == "" {
		cfg.Notification.Tag = def.Tag
	}
	return nil
}
