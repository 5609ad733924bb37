package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"
)

// Parse splits a CQL script into its individual statements in file order.
// Comments are removed; quoted values are kept verbatim, including any
// embedded newlines or semicolons. Returns an empty slice for scripts that
// contain only whitespace and comments, and ErrNonTerminatedStatement if
// the last statement has no terminator.
func Parse(script string) ([]string, error) {
	lines := strings.Split(script, "\n")
	stmts := make([]string, 0, len(lines)/2+1)

	m := Machine{State: Scanning}

	for _, line := range lines {
		var (
			stmt string
			ok   bool
		)

		m, stmt, ok = Step(m, strings.TrimSuffix(line, "\r"))
		if ok {
			stmts = append(stmts, stmt)
		}
	}

	if m.State == InQuotedValue || !isBlank(m.Pending) {
		return nil, fmt.Errorf("%w: %q", ErrNonTerminatedStatement, preview(m.Pending))
	}

	return stmts, nil
}

// preview shortens a pending statement for inclusion in an error message.
func preview(s string) string {
	const maxLen = 60

	s = trimSpace(s)
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen-3] + "..."
}

func isBlank(s string) bool     { return strings.TrimSpace(s) == "" }
func trimSpace(s string) string { return strings.TrimSpace(s) }
func trimRight(s string) string { return strings.TrimRight(s, " \t\r\n") }

func hasPrefixAt(s, prefix string, i int) bool {
	return strings.HasPrefix(s[i:], prefix)
}

func indexFrom(s, sub string, i int) int {
	j := strings.Index(s[i:], sub)
	if j < 0 {
		return -1
	}

	return i + j
}
