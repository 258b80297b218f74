/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"sort"
	"strings"

	"github.com/vasayxtx/go-glob"
)

type endpointPattern struct {
	pattern string
	match   func(s string) bool
	cfg     EndpointConfig
}

// endpointMatcher finds configuration of an endpoint by its name.
// An exact (case-insensitive) name wins, otherwise the longest matching "*" pattern is used.
type endpointMatcher struct {
	exact    map[string]EndpointConfig
	patterns []endpointPattern
}

func newEndpointMatcher(endpoints map[string]EndpointConfig) *endpointMatcher {
	m := &endpointMatcher{exact: make(map[string]EndpointConfig, len(endpoints))}
	for name, cfg := range endpoints {
		name = strings.ToLower(name)
		if strings.Contains(name, "*") {
			m.patterns = append(m.patterns, endpointPattern{pattern: name, match: glob.Compile(name), cfg: cfg})
			continue
		}
		m.exact[name] = cfg
	}
	sort.Slice(m.patterns, func(i, j int) bool {
		if len(m.patterns[i].pattern) != len(m.patterns[j].pattern) {
			return len(m.patterns[i].pattern) > len(m.patterns[j].pattern)
		}
		return m.patterns[i].pattern < m.patterns[j].pattern
	})
	return m
}

func (m *endpointMatcher) find(endpoint string) (EndpointConfig, bool) {
	endpoint = strings.ToLower(endpoint)
	if cfg, ok := m.exact[endpoint]; ok {
		return cfg, true
	}
	for i := range m.patterns {
		if m.patterns[i].match(endpoint) {
			return m.patterns[i].cfg, true
		}
	}
	return EndpointConfig{}, false
}
