// Package validate holds the per-step input rules of the intake dialogue.
// Every function is a pure string to Result mapping.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength     = 2
	minLocationLength = 5
	skipKeyword       = "skip"
	countryCode       = "234"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// National (0), bare country code (234) or international (+234) prefix,
	// then a mobile network prefix and eight subscriber digits.
	phonePattern   = regexp.MustCompile(`^(\+234|234|0)[7-9][0-1]\d{8}$`)
	phoneSeparator = strings.NewReplacer(" ", "", "\t", "", "-", "", ".", "", "(", "", ")", "")
)

type Result struct {
	Valid bool
	Value string
	Error string
	// Skipped is set when the client explicitly declined to answer an optional step.
	Skipped bool
}

func ok(value string) Result {
	return Result{Valid: true, Value: value}
}

func fail(message string) Result {
	return Result{Error: message}
}

func Name(raw string) Result {
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) < minNameLength {
		return fail("Please provide your full name (at least 2 characters).")
	}
	return ok(value)
}

func Email(raw string) Result {
	value := strings.TrimSpace(raw)
	if strings.ContainsAny(value, "\r\n") || !emailPattern.MatchString(value) {
		return fail("Please provide a valid email address (e.g. name@example.com).")
	}
	return ok(value)
}

func Phone(raw string) Result {
	cleaned := cleanPhone(raw)
	if !phonePattern.MatchString(cleaned) {
		return fail("Please provide a valid Nigerian mobile number (e.g. 09152870616 or +2349152870616).")
	}
	return ok(NormalizePhone(cleaned))
}

// NormalizePhone rewrites any accepted phone form to +234XXXXXXXXXX. Input that
// does not carry a known prefix is returned with separators removed.
func NormalizePhone(raw string) string {
	cleaned := cleanPhone(raw)
	switch {
	case strings.HasPrefix(cleaned, "+"+countryCode):
		return cleaned
	case strings.HasPrefix(cleaned, countryCode):
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0"):
		return "+" + countryCode + cleaned[1:]
	default:
		return cleaned
	}
}

func IsPhone(raw string) bool {
	return phonePattern.MatchString(cleanPhone(raw))
}

func cleanPhone(raw string) string {
	return phoneSeparator.Replace(strings.TrimSpace(raw))
}

// Choice accepts a 1-based index into options or a case-insensitive exact
// option name, and normalizes to the option as spelled in the list.
func Choice(raw string, options []string) Result {
	value := strings.TrimSpace(raw)
	if idx, err := strconv.Atoi(value); err == nil {
		if idx >= 1 && idx <= len(options) {
			return ok(options[idx-1])
		}
		return fail(choiceError(options))
	}
	for _, option := range options {
		if strings.EqualFold(option, value) {
			return ok(option)
		}
	}
	return fail(choiceError(options))
}

func choiceError(options []string) string {
	return fmt.Sprintf("Please choose a valid option (1-%d) or type the option name.", len(options))
}

func Location(raw string) Result {
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) < minLocationLength {
		return fail("Please provide a more detailed location/address.")
	}
	return ok(value)
}

func Comments(raw string) Result {
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, skipKeyword) {
		return Result{Valid: true, Skipped: true}
	}
	return ok(value)
}
