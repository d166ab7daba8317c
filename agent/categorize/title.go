package categorize

import "strings"

var browserProcesses = []string{"chrome", "firefox", "msedge", "opera", "brave", "vivaldi", "safari"}

var browserNames = []string{"Chrome", "Chromium", "Firefox", "Edge", "Mozilla", "Opera", "Brave", "Vivaldi", "Safari"}

// CleanTitle strips the trailing browser name from browser window titles,
// e.g. "Pull requests - github.com - Google Chrome" becomes
// "Pull requests - github.com". Titles of other apps are returned unchanged.
func CleanTitle(app, title string) string {
	if !isBrowser(app) {
		return title
	}
	return extractBrowserInfo(title)
}

func isBrowser(app string) bool {
	appLower := strings.ToLower(app)
	for _, p := range browserProcesses {
		if strings.Contains(appLower, p) {
			return true
		}
	}
	return false
}

func extractBrowserInfo(title string) string {
	parts := strings.Split(title, " - ")
	if len(parts) < 2 {
		return title
	}

	end := len(parts)
	for end > 1 && mentionsBrowser(parts[end-1]) {
		end--
	}

	kept := make([]string, 0, end)
	for _, part := range parts[:end] {
		part = strings.TrimSpace(part)
		if isURLish(part) {
			part = hostOf(part)
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, " - ")
}

func mentionsBrowser(part string) bool {
	for _, name := range browserNames {
		if strings.Contains(part, name) {
			return true
		}
	}
	return false
}

func isURLish(part string) bool {
	if !strings.Contains(part, ".") || strings.Contains(part, " ") {
		return false
	}
	return strings.HasPrefix(part, "www.") || strings.Contains(part, "://") || len(strings.Split(part, ".")) >= 2
}

func hostOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	url = strings.Split(url, "/")[0]
	return strings.Split(url, "?")[0]
}
