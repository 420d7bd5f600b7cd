package privacy

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hpungsan/flightrecorder/internal/logging"
)

// Mode selects how the filter treats matching content.
type Mode int

const (
	// ModeBlock drops content on the first matching pattern.
	ModeBlock Mode = iota
	// ModeRedact replaces every match with the redaction placeholder.
	ModeRedact
	// ModeWarnOnly logs matches and lets content through unchanged.
	ModeWarnOnly
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBlock:
		return "block"
	case ModeRedact:
		return "redact"
	case ModeWarnOnly:
		return "warn"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return ModeBlock, nil
	case "redact":
		return ModeRedact, nil
	case "warn", "warn_only", "warn-only", "warnonly":
		return ModeWarnOnly, nil
	}
	return ModeBlock, fmt.Errorf("unknown privacy mode %q (expected block, redact, or warn)", s)
}

// DefaultPlaceholder replaces redacted matches.
const DefaultPlaceholder = "[REDACTED]"

// FilterConfig configures a Filter.
type FilterConfig struct {
	Enabled              bool
	Mode                 Mode
	UseBuiltinPatterns   bool
	CustomPatterns       []string
	ExcludedApps         []string
	RedactionPlaceholder string
}

// DefaultFilterConfig returns an enabled blocking filter with the built-in
// patterns and the default excluded applications.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Enabled:              true,
		Mode:                 ModeBlock,
		UseBuiltinPatterns:   true,
		ExcludedApps:         DefaultExcludedApps(),
		RedactionPlaceholder: DefaultPlaceholder,
	}
}

// Outcome is the classification of a piece of content.
type Outcome int

const (
	Passed Outcome = iota
	Blocked
	Redacted
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Blocked:
		return "blocked"
	case Redacted:
		return "redacted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the outcome of Classify.
//
// Blocked results carry the name of the first matching pattern in Pattern.
// Redacted results carry the rewritten text in Content and every pattern that
// fired in Patterns. Passed results carry neither; the caller keeps its input.
type Result struct {
	Outcome  Outcome
	Pattern  string
	Content  string
	Patterns []string
}

// Filter classifies content against sensitive patterns and tracks excluded apps.
// Classify and the exclusion list methods are safe for concurrent use.
type Filter struct {
	enabled     bool
	mode        Mode
	placeholder string
	patterns    []FilterPattern
	log         *logging.Logger

	mu       sync.RWMutex
	excluded []string
}

// NewFilter builds a filter. Custom patterns that fail to compile are dropped
// with a warning; the rest of the set stays usable.
func NewFilter(cfg FilterConfig, log *logging.Logger) *Filter {
	if log == nil {
		log = logging.Discard()
	}

	var patterns []FilterPattern
	if cfg.UseBuiltinPatterns {
		patterns = append(patterns, BuiltinPatterns()...)
	}
	custom, invalid := CompileCustomPatterns(cfg.CustomPatterns)
	for _, expr := range invalid {
		log.Warnf("ignoring invalid custom pattern %q", expr)
	}
	patterns = append(patterns, custom...)

	placeholder := cfg.RedactionPlaceholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	return &Filter{
		enabled:     cfg.Enabled,
		mode:        cfg.Mode,
		placeholder: placeholder,
		patterns:    patterns,
		log:         log,
		excluded:    slices.Clone(cfg.ExcludedApps),
	}
}

// Enabled reports whether Classify inspects content at all.
func (f *Filter) Enabled() bool {
	return f.enabled
}

// Mode returns the filter mode.
func (f *Filter) Mode() Mode {
	return f.mode
}

// Patterns returns the active patterns, built-in first.
func (f *Filter) Patterns() []FilterPattern {
	return slices.Clone(f.patterns)
}

// Classify decides whether content may be stored.
func (f *Filter) Classify(content string) Result {
	if !f.enabled {
		return Result{Outcome: Passed}
	}

	switch f.mode {
	case ModeRedact:
		return f.redact(content)
	case ModeWarnOnly:
		for _, p := range f.patterns {
			if p.Regex.MatchString(content) {
				f.log.Warnf("sensitive content detected: %s (%s)", p.Name, p.Description)
			}
		}
		return Result{Outcome: Passed}
	default:
		for _, p := range f.patterns {
			if p.Regex.MatchString(content) {
				f.log.Debugf("blocked by pattern %s", p.Name)
				return Result{Outcome: Blocked, Pattern: p.Name}
			}
		}
		return Result{Outcome: Passed}
	}
}

// redact applies each pattern in order to the progressively rewritten text.
func (f *Filter) redact(content string) Result {
	text := content
	var fired []string
	for _, p := range f.patterns {
		if p.Regex.MatchString(text) {
			text = p.Regex.ReplaceAllLiteralString(text, f.placeholder)
			fired = append(fired, p.Name)
		}
	}
	if len(fired) == 0 {
		return Result{Outcome: Passed}
	}
	f.log.Debugf("redacted patterns %s", strings.Join(fired, ","))
	return Result{Outcome: Redacted, Content: text, Patterns: fired}
}

// IsAppExcluded reports whether app is on the exclusion list.
// Matching is case-insensitive and exact, not substring.
// The list applies even when pattern filtering is disabled.
func (f *Filter) IsAppExcluded(app string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, excluded := range f.excluded {
		if strings.EqualFold(excluded, app) {
			return true
		}
	}
	return false
}

// ExcludeApp adds app to the exclusion list unless an exact entry exists.
func (f *Filter) ExcludeApp(app string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.excluded, app) {
		f.excluded = append(f.excluded, app)
	}
}

// UnexcludeApp removes every case-insensitive match of app. Returns true if any were removed.
func (f *Filter) UnexcludeApp(app string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.excluded)
	f.excluded = slices.DeleteFunc(f.excluded, func(s string) bool {
		return strings.EqualFold(s, app)
	})
	return len(f.excluded) != before
}

// ExcludedApps returns a snapshot of the exclusion list.
func (f *Filter) ExcludedApps() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.excluded)
}
