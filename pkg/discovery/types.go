// Copyright 2025 Kadir Pekel
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

// Package discovery observes a single web page for an LLM agent.
//
// Tools exposes three observation tools (screenshot, page metadata and
// interactable elements) over a browser.Page. The agent calls them and then
// answers with an Observation encoded as JSON, which ParseObservation reads
// back.
package discovery

import (
	"net/url"
	"strings"
)

// Element is an interactable element found on the page.
type Element struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Tag      string `json:"tag"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
	Score    int    `json:"score"`
}

// Observation is what the agent reports about a page.
type Observation struct {
	Screenshot string            `json:"screenshot"`
	Metadata   map[string]string `json:"metadata"`
	Elements   []Element         `json:"elements"`
}

// UnknownHost names the asset directory of a page without a hostname.
const UnknownHost = "unknown_host"

// HostOf returns the hostname of rawURL, or UnknownHost. Hostnames that
// are not usable as a single path element map to UnknownHost too.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !ValidHost(u.Hostname()) {
		return UnknownHost
	}
	return u.Hostname()
}

// ValidHost reports whether host can name a directory under the assets dir.
func ValidHost(host string) bool {
	if host == "" || host == "." || host == ".." {
		return false
	}
	return !strings.ContainsAny(host, `/\`)
}
