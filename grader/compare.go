package grader

import (
	"regexp"
	"strconv"
	"strings"
)

// callPattern matches inputs that already are a call expression
var callPattern = regexp.MustCompile(`(?s)^[A-Za-z_][A-Za-z0-9_.]*\s*\(.*\)$`)

// Invocation turns a test-case input into the expression evaluated after
// the submission. Empty input runs the program as-is, a call expression is
// used verbatim and anything else is an argument list for the entry
// function.
func (r *Runner) Invocation(input string) string {
	in := strings.TrimSpace(input)
	switch {
	case in == "":
		return ""
	case callPattern.MatchString(in):
		return in
	default:
		return r.entryFunction + "(" + in + ")"
	}
}

// Compare reports whether actual output satisfies expected output. Rules
// are tried in order: whitespace-normalized equality, numeric equality,
// case-insensitive equality and, when allowed, containment.
func Compare(expected, actual string, allowContainment bool) bool {
	exp := collapseWhitespace(expected)
	act := collapseWhitespace(actual)

	if exp == "" {
		return act == ""
	}
	if exp == act {
		return true
	}

	if ef, err := strconv.ParseFloat(exp, 64); err == nil {
		if af, err := strconv.ParseFloat(act, 64); err == nil && ef == af {
			return true
		}
	}

	if strings.EqualFold(exp, act) {
		return true
	}

	return allowContainment && strings.Contains(act, exp)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
