package activity

import (
	"fmt"
	"strings"
)

// MatchKind selects how a SiteMatcher compares its literal against a title.
type MatchKind int

const (
	MatchEquals MatchKind = iota
	MatchPrefix
	MatchSuffix
)

// ParseMatchKind parses "equals", "prefix" or "suffix".
func ParseMatchKind(s string) (MatchKind, error) {
	switch strings.ToLower(s) {
	case "equals", "eq":
		return MatchEquals, nil
	case "prefix", "starts_with":
		return MatchPrefix, nil
	case "suffix", "ends_with":
		return MatchSuffix, nil
	default:
		return 0, fmt.Errorf("invalid match kind: %s (must be equals, prefix or suffix)", s)
	}
}

func (k MatchKind) String() string {
	switch k {
	case MatchEquals:
		return "equals"
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// SiteMatcher maps a page title to a site label.
type SiteMatcher struct {
	Kind    MatchKind
	Literal string
	Label   string
}

// Match reports whether title satisfies the matcher.
func (m SiteMatcher) Match(title string) bool {
	switch m.Kind {
	case MatchEquals:
		return title == m.Literal
	case MatchPrefix:
		return strings.HasPrefix(title, m.Literal)
	case MatchSuffix:
		return strings.HasSuffix(title, m.Literal)
	default:
		return false
	}
}

// Rule derives a subprogram label from a window title.
type Rule interface {
	Subprogram(title string) (string, bool)
}

// BrowserRule recognizes websites open in a browser. The browser appends
// Suffix to every page title; the remaining page title is checked against
// Sites in order and the first match wins.
type BrowserRule struct {
	Suffix string
	Sites  []SiteMatcher
}

// Subprogram implements Rule.
func (r *BrowserRule) Subprogram(title string) (string, bool) {
	page, ok := strings.CutSuffix(title, r.Suffix)
	if !ok {
		return "", false
	}
	page = strings.TrimSpace(page)

	for _, site := range r.Sites {
		if site.Match(page) {
			return site.Label, true
		}
	}
	return "", false
}

// SegmentRule splits the title on Separator and, when exactly Parts pieces
// result, returns the piece at Index. Editors that title windows as
// "file - project - Editor" are handled this way.
type SegmentRule struct {
	Separator string
	Parts     int
	Index     int
}

// Subprogram implements Rule.
func (r *SegmentRule) Subprogram(title string) (string, bool) {
	pieces := strings.Split(title, r.Separator)
	if len(pieces) != r.Parts || r.Index < 0 || r.Index >= len(pieces) {
		return "", false
	}
	return pieces[r.Index], true
}

// Registry holds subprogram rules keyed by lower-cased process identifier.
// It is populated at startup and read-only afterwards.
type Registry struct {
	rules map[string][]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]Rule)}
}

// Register appends a rule for a process. Rules for a process are tried in
// registration order.
func (r *Registry) Register(process string, rule Rule) {
	process = strings.ToLower(process)
	r.rules[process] = append(r.rules[process], rule)
}

// AddSite appends a site matcher to the first BrowserRule registered for process.
func (r *Registry) AddSite(process string, site SiteMatcher) error {
	if site.Label == "" {
		return fmt.Errorf("site rule for %s: label is required", process)
	}
	if strings.Contains(site.Label, keySeparator) {
		return fmt.Errorf("site rule for %s: label %q contains %q", process, site.Label, keySeparator)
	}
	for _, rule := range r.rules[strings.ToLower(process)] {
		if browser, ok := rule.(*BrowserRule); ok {
			browser.Sites = append(browser.Sites, site)
			return nil
		}
	}
	return fmt.Errorf("no browser rule registered for process %q", process)
}

// Processes returns the registered process identifiers.
func (r *Registry) Processes() []string {
	out := make([]string, 0, len(r.rules))
	for process := range r.rules {
		out = append(out, process)
	}
	return out
}

// Classify returns the subprogram label for a window, or "" when none applies.
// The process name is the raw name reported by the window backend and is
// matched case-insensitively.
func (r *Registry) Classify(process, title string) string {
	for _, rule := range r.rules[strings.ToLower(process)] {
		label, ok := rule.Subprogram(title)
		if !ok || label == "" || strings.Contains(label, keySeparator) {
			continue
		}
		return label
	}
	return ""
}

// DefaultRegistry returns a registry holding the built-in rules.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("firefox", &BrowserRule{
		Suffix: "— Mozilla Firefox",
		Sites: []SiteMatcher{
			{Kind: MatchEquals, Literal: "generals.io", Label: "generals.io"},
			{Kind: MatchPrefix, Literal: "generals.io |", Label: "generals.io"},
			{Kind: MatchSuffix, Literal: "YouTube", Label: "youtube.com"},
			{Kind: MatchSuffix, Literal: "| Musescore.com", Label: "musescore.com"},
			{Kind: MatchPrefix, Literal: "Musescore.com |", Label: "musescore.com"},
			{Kind: MatchSuffix, Literal: "- Google Docs", Label: "docs.google.com"},
			{Kind: MatchEquals, Literal: "WhatsApp", Label: "whatsapp.com"},
			{Kind: MatchSuffix, Literal: "| Quizlet", Label: "quizlet.com"},
		},
	})

	r.Register("code", &SegmentRule{Separator: " - ", Parts: 3, Index: 1})

	return r
}
