package privacy

import (
	"regexp"
	"strconv"
)

// FilterPattern is a named, compiled sensitive-content pattern.
type FilterPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
}

// builtinPatterns is checked in declaration order; Block mode stops at the first hit.
var builtinPatterns = []FilterPattern{
	{
		Name:        "api_key_generic",
		Description: "Generic API key assignment",
		Regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{16,}['"]?`),
	},
	{
		Name:        "bearer_token",
		Description: "Bearer authentication token",
		Regex:       regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.=-]+`),
	},
	{
		Name:        "aws_key",
		Description: "AWS access key ID",
		Regex:       regexp.MustCompile(`(?i)(AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}`),
	},
	{
		Name:        "aws_secret",
		Description: "AWS secret access key",
		Regex:       regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`),
	},
	{
		Name:        "password_field",
		Description: "Password assignment",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[:=]\s*['"]?[^\s'"]{4,}['"]?`),
	},
	{
		Name:        "credit_card",
		Description: "Payment card number",
		Regex:       regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`),
	},
	{
		Name:        "ssn",
		Description: "US Social Security number",
		Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		Name:        "private_key",
		Description: "PEM private key header",
		Regex:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`),
	},
	{
		Name:        "github_token",
		Description: "GitHub access token",
		Regex:       regexp.MustCompile(`(?i)(ghp_|gho_|ghu_|ghs_|ghr_)[a-zA-Z0-9]{36}`),
	},
	{
		Name:        "slack_token",
		Description: "Slack token",
		Regex:       regexp.MustCompile(`xox[baprs]-[0-9]+-[0-9]+-[a-zA-Z0-9]+`),
	},
	{
		Name:        "connection_string",
		Description: "Database connection string with credentials",
		Regex:       regexp.MustCompile(`(?i)(mongodb|postgres|mysql|redis)://[^:]+:[^@]+@`),
	},
}

// BuiltinPatterns returns a copy of the built-in pattern table.
func BuiltinPatterns() []FilterPattern {
	out := make([]FilterPattern, len(builtinPatterns))
	copy(out, builtinPatterns)
	return out
}

// CompileCustomPatterns compiles user-supplied expressions as custom_<index>.
// Expressions that fail to compile are skipped and reported in invalid.
func CompileCustomPatterns(exprs []string) (patterns []FilterPattern, invalid []string) {
	for i, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			invalid = append(invalid, expr)
			continue
		}
		patterns = append(patterns, FilterPattern{
			Name:        "custom_" + strconv.Itoa(i),
			Description: "Custom pattern",
			Regex:       re,
		})
	}
	return patterns, invalid
}

var defaultExcludedApps = []string{
	// Password managers
	"1Password",
	"1Password 7",
	"1Password 8",
	"Bitwarden",
	"LastPass",
	"Dashlane",
	"KeePassXC",
	"Keychain Access",
	// Authenticators
	"Authenticator",
	"Google Authenticator",
	"Microsoft Authenticator",
	"Authy",
	// Terminals
	"Terminal",
	"iTerm2",
	"Alacritty",
	"Warp",
}

// DefaultExcludedApps returns the applications excluded from capture by default.
func DefaultExcludedApps() []string {
	out := make([]string, len(defaultExcludedApps))
	copy(out, defaultExcludedApps)
	return out
}
