// Package categorize maps application identities to usage categories and
// tidies window titles before sessions are stored.
package categorize

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ctolnik/activity-tracker/agent/activity"
)

const (
	System        = "System"
	Browser       = "Browser"
	Productivity  = "Productivity"
	Development   = "Development"
	Entertainment = "Entertainment"
	Communication = "Communication"
	Utility       = "Utility"
	Unknown       = "Unknown"
	Idle          = "Idle"
)

// Rule assigns a category to an exact process name or a glob pattern.
type Rule struct {
	ProcessName    string `yaml:"process_name"`
	ProcessPattern string `yaml:"process_pattern"`
	Category       string `yaml:"category"`
}

// Categorizer is safe for concurrent use.
type Categorizer struct {
	mu       sync.RWMutex
	exact    map[string]string
	patterns []Rule
}

// New returns a categorizer seeded with the built-in table. Rules override
// built-in entries with the same process name.
func New(rules []Rule) *Categorizer {
	c := &Categorizer{exact: make(map[string]string)}
	for _, d := range defaultApps {
		for _, app := range d.apps {
			c.exact[strings.ToLower(app)] = d.category
		}
	}
	for _, r := range rules {
		if r.Category == "" {
			continue
		}
		if r.ProcessName != "" {
			c.exact[strings.ToLower(r.ProcessName)] = r.Category
		}
		if r.ProcessPattern != "" {
			c.patterns = append(c.patterns, Rule{
				ProcessPattern: strings.ToLower(r.ProcessPattern),
				Category:       r.Category,
			})
		}
	}
	return c
}

// Category returns the category of an application.
// Priority: 1. exact name, 2. glob pattern, 3. keyword heuristics.
func (c *Categorizer) Category(app string) string {
	app = strings.TrimSpace(app)
	if app == "" {
		return Unknown
	}
	appLower := strings.ToLower(app)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if category, ok := c.exact[appLower]; ok {
		return category
	}
	if filepath.Ext(appLower) == "" {
		if category, ok := c.exact[appLower+".exe"]; ok {
			return category
		}
	}

	for _, r := range c.patterns {
		matched, err := filepath.Match(r.ProcessPattern, appLower)
		if err == nil && matched {
			return r.Category
		}
	}

	return heuristicCategory(appLower)
}

// ForSession categorizes a closed session. Idle sessions are always Idle.
func (c *Categorizer) ForSession(s activity.Session) string {
	if s.Idle {
		return Idle
	}
	return c.Category(s.AppIdentity)
}

// Set adds or replaces the category of an exact process name.
func (c *Categorizer) Set(app, category string) bool {
	app = strings.TrimSpace(app)
	if app == "" || category == "" {
		return false
	}
	c.mu.Lock()
	c.exact[strings.ToLower(app)] = category
	c.mu.Unlock()
	return true
}

// Categories lists every category known to the exact-match table, sorted.
func (c *Categorizer) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, category := range c.exact {
		seen[category] = struct{}{}
	}
	for _, r := range c.patterns {
		seen[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// AppsIn lists the exact process names mapped to category, sorted.
func (c *Categorizer) AppsIn(category string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for app, cat := range c.exact {
		if cat == category {
			out = append(out, app)
		}
	}
	sort.Strings(out)
	return out
}

var heuristics = []struct {
	category string
	keywords []string
}{
	{Browser, []string{"chrome", "firefox", "edge", "opera", "safari", "brave"}},
	{Development, []string{"code", "studio", "edit", "ide", "notepad", "vim", "emacs", "compiler", "terminal", "python", "java", "node", "npm"}},
	{Productivity, []string{"word", "excel", "powerpoint", "ppt", "doc", "spreadsheet", "calc", "write", "office", "libre", "outlook", "mail", "acrobat", "pdf"}},
	{Entertainment, []string{"play", "media", "vlc", "netflix", "spotify", "music", "video", "audio", "game", "steam", "player", "movie", "tv"}},
	{Communication, []string{"chat", "talk", "meet", "zoom", "teams", "skype", "discord", "slack", "messenger", "whatsapp", "telegram", "signal"}},
}

func heuristicCategory(appLower string) string {
	for _, h := range heuristics {
		for _, kw := range h.keywords {
			if strings.Contains(appLower, kw) {
				return h.category
			}
		}
	}
	if strings.Contains(appLower, "finder") {
		return Utility
	}
	if strings.HasSuffix(appLower, ".exe") {
		return Utility
	}
	return Unknown
}
