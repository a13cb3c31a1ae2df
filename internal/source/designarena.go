package source

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

const defaultDesignArenaBaseURL = "https://www.designarena.ai/"

// The bundle carrying the model mapping is identifiable by this marker.
const bundleMarker = "open_source:!"

var (
	scriptSrcRe = regexp.MustCompile(`(?i)src=["']([^"']+\.js[^"']*)["']`)
	jsRefRe     = regexp.MustCompile(`["']([^"']+\.js[^"']*)["']`)
	modelIDRe   = regexp.MustCompile(`\bid\s*:\s*['"]([^'"]+)['"]`)
	displayRe   = regexp.MustCompile(`\bdisplayName\s*:\s*['"]([^'"]+)['"]`)
)

// DesignArenaSource scrapes the model mapping out of the site's hashed JS
// bundle: collect candidate script URLs from the homepage, fetch until one
// carries the marker, then pull (id, displayName) pairs out of the largest
// object literal that looks like the mapping.
type DesignArenaSource struct {
	name     string
	interval time.Duration
	baseURL  string
	client   *http.Client
	log      logx.Logger
}

func NewDesignArena(name string, interval time.Duration, baseURL string, log logx.Logger) *DesignArenaSource {
	if baseURL == "" {
		baseURL = defaultDesignArenaBaseURL
	}
	return &DesignArenaSource{
		name:     name,
		interval: interval,
		baseURL:  baseURL,
		client:   newClient(),
		log:      log,
	}
}

func (s *DesignArenaSource) Name() string            { return s.name }
func (s *DesignArenaSource) Interval() time.Duration { return s.interval }

func (s *DesignArenaSource) Fetch(ctx context.Context) ([]catalog.Model, error) {
	html, err := s.fetchText(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fetchErr(s.name, err)
	}

	candidates := scriptCandidates(html, base)
	if len(candidates) == 0 {
		return nil, fetchErrf(s.name, "no script candidates found in homepage HTML")
	}

	tried := 0
	for _, candidate := range candidates {
		text, err := s.fetchText(ctx, candidate)
		if err != nil {
			tried++
			continue
		}
		if !strings.Contains(text, bundleMarker) {
			tried++
			continue
		}
		block := findLargestModelBlock(text)
		if block == "" {
			tried++
			continue
		}
		entries := extractModelEntries(block)
		if len(entries) == 0 {
			tried++
			continue
		}
		return entries, nil
	}
	return nil, fetchErrf(s.name, "model bundle not found after checking %d scripts", tried)
}

func (s *DesignArenaSource) fetchText(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fetchErr(s.name, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")

	body, err := getBody(ctx, s.client, req, s.name)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// scriptCandidates collects .js references (script src attributes plus any
// quoted .js path) resolved against the page URL, deduplicated in order of
// first appearance.
func scriptCandidates(html string, base *url.URL) []string {
	var out []string
	seen := map[string]bool{}

	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if strings.HasPrefix(path, "//") {
			path = "https:" + path
		}
		ref, err := url.Parse(path)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, resolved)
		}
	}

	for _, m := range scriptSrcRe.FindAllStringSubmatch(html, -1) {
		add(m[1])
	}
	for _, m := range jsRefRe.FindAllStringSubmatch(html, -1) {
		add(m[1])
	}
	return out
}

// findLargestModelBlock scans every balanced {...} span in the bundle
// (quote- and escape-aware) and keeps the one yielding the most model
// entries. Tiny spans and spans without both marker keys are skipped early.
func findLargestModelBlock(text string) string {
	var best string
	bestCount := 0

	var stack []int
	var quote byte
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if i-start < 500 {
				continue
			}
			segment := text[start : i+1]
			if !strings.Contains(segment, "displayName") || !strings.Contains(segment, "id") {
				continue
			}
			if n := len(extractModelEntries(segment)); n > bestCount {
				bestCount = n
				best = segment
			}
		}
	}
	return best
}

// extractModelEntries pulls (id, displayName) pairs out of the top-level
// values of a mapping object literal.
func extractModelEntries(block string) []catalog.Model {
	var out []catalog.Model
	for _, obj := range topLevelObjectValues(block) {
		idMatch := modelIDRe.FindStringSubmatch(obj)
		displayMatch := displayRe.FindStringSubmatch(obj)
		if idMatch == nil || displayMatch == nil {
			continue
		}
		out = append(out, catalog.Model{ID: idMatch[1], Name: displayMatch[1]})
	}
	return out
}

// topLevelObjectValues returns the object literals appearing as values of
// the outermost mapping, i.e. the "{...}" following a ':' at depth 1.
func topLevelObjectValues(text string) []string {
	var out []string
	depth := 0
	var quote byte
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth <= 0 {
				return out
			}
		case ':':
			if depth != 1 {
				continue
			}
			scan := i + 1
			for scan < len(text) && (text[scan] == ' ' || text[scan] == '\t' || text[scan] == '\n') {
				scan++
			}
			if scan < len(text) && text[scan] == '{' {
				if end := matchingBrace(text, scan); end > 0 {
					out = append(out, text[scan:end+1])
					i = end
				}
			}
		}
	}
	return out
}

// matchingBrace returns the index of the brace closing the one at start,
// or -1 if the span never terminates.
func matchingBrace(text string, start int) int {
	depth := 0
	var quote byte
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
