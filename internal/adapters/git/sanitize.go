package git

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"kiln/internal/logging"
)

// allowedBranchChars matches the characters kiln accepts in branch
// names. Stricter than git-check-ref-format because branch names end
// up in shell commands and filesystem paths.
var allowedBranchChars = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)

// disallowedBranchChars matches runs of characters that sanitization
// replaces with a single hyphen: git-prohibited characters, shell
// metacharacters, and whitespace.
var disallowedBranchChars = regexp.MustCompile(`[\s~^:?*\[\]\\{}#@()&|;<>$` + "`" + `'"]+`)

var repeatedHyphens = regexp.MustCompile(`-{2,}`)

// ValidateBranchName checks a user-provided branch name against git's
// ref naming rules. Returns nil when the name is usable as-is.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if name == "@" {
		return fmt.Errorf("branch name cannot be '@'")
	}

	for _, prefix := range []string{".", "/", "-"} {
		if strings.HasPrefix(name, prefix) {
			return fmt.Errorf("branch name cannot start with '%s'", prefix)
		}
	}
	for _, suffix := range []string{".lock", ".", "/", "-"} {
		if strings.HasSuffix(name, suffix) {
			return fmt.Errorf("branch name cannot end with '%s'", suffix)
		}
	}
	for _, seq := range []string{"..", "//", "@{"} {
		if strings.Contains(name, seq) {
			return fmt.Errorf("branch name cannot contain '%s'", seq)
		}
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("branch name cannot contain control characters")
		}
	}

	if !allowedBranchChars.MatchString(name) {
		return fmt.Errorf("branch name contains invalid characters (only alphanumeric, '.', '_', '-', '/' allowed)")
	}

	return nil
}

// SanitizeBranchName derives a valid git branch name from an arbitrary
// string, typically a session name. Returns an error when nothing
// usable remains after sanitization.
func SanitizeBranchName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("cannot sanitize empty string")
	}

	result := strings.ToLower(name)

	var builder strings.Builder
	for _, r := range result {
		if !unicode.IsControl(r) {
			builder.WriteRune(r)
		}
	}
	result = builder.String()

	result = disallowedBranchChars.ReplaceAllString(result, "-")
	result = strings.ReplaceAll(result, "..", "-")
	result = strings.ReplaceAll(result, "//", "/")
	result = strings.TrimLeft(result, "./-")
	result = strings.TrimSuffix(result, ".lock")
	result = strings.TrimRight(result, "./-")
	result = repeatedHyphens.ReplaceAllString(result, "-")

	if result == "" {
		return "", fmt.Errorf("sanitization resulted in empty branch name")
	}
	if result == "@" {
		return "", fmt.Errorf("sanitization resulted in invalid branch name '@'")
	}

	logging.Logger.Debug("Branch name sanitized", "input", name, "output", result)
	return result, nil
}

// ValidateBranchName implements ports.BranchNamer.
func (c *Client) ValidateBranchName(name string) error {
	return ValidateBranchName(name)
}

// SanitizeBranchName implements ports.BranchNamer.
func (c *Client) SanitizeBranchName(name string) (string, error) {
	return SanitizeBranchName(name)
}
