package vars

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rule is one composable validation rule applied to Question node input
// (spec §4.A). Rules are comma-separated in a node's validation string,
// e.g. "min:3,max:32,email".
type Rule struct {
	Name    string // "min", "max", "regex", or a named validator
	Arg     string
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	cpfRe   = regexp.MustCompile(`^\d{11}$`)
)

// ParseRules splits a comma-separated validation spec into Rules.
func ParseRules(spec string) []Rule {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	parts := strings.Split(spec, ",")
	rules := make([]Rule, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if idx := strings.Index(p, ":"); idx >= 0 {
			rules = append(rules, Rule{Name: p[:idx], Arg: p[idx+1:]})
		} else {
			rules = append(rules, Rule{Name: p})
		}
	}
	return rules
}

// Validate runs every rule against input, returning the reason for the
// first failure (InputRejected(reason) per spec §4.C), or "" on success.
func Validate(input string, rules []Rule) string {
	for _, r := range rules {
		if reason := applyRule(input, r); reason != "" {
			return reason
		}
	}
	return ""
}

func applyRule(input string, r Rule) string {
	switch r.Name {
	case "min":
		n, err := strconv.Atoi(r.Arg)
		if err != nil {
			return fmt.Sprintf("invalid rule min:%s", r.Arg)
		}
		if len(input) < n {
			return fmt.Sprintf("must be at least %d characters", n)
		}
	case "max":
		n, err := strconv.Atoi(r.Arg)
		if err != nil {
			return fmt.Sprintf("invalid rule max:%s", r.Arg)
		}
		if len(input) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
	case "regex":
		re, err := regexp.Compile(r.Arg)
		if err != nil {
			return fmt.Sprintf("invalid rule regex:%s", r.Arg)
		}
		if !re.MatchString(input) {
			return "does not match required pattern"
		}
	case "email":
		if !emailRe.MatchString(input) {
			return "invalid email format"
		}
	case "phone":
		if !phoneRe.MatchString(input) {
			return "invalid phone format"
		}
	case "cpf":
		if !cpfRe.MatchString(input) {
			return "invalid CPF format"
		}
	case "number":
		if _, err := strconv.ParseFloat(strings.TrimSpace(input), 64); err != nil {
			return "must be a number"
		}
	case "date":
		if _, err := time.Parse("2006-01-02", input); err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
	default:
		return fmt.Sprintf("unknown validator %q", r.Name)
	}
	return ""
}
