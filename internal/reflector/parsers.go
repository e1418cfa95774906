// Package reflector mines execution traces for insights: single-trace error
// analysis, batch clustering across traces, and thread-context enrichment.
package reflector

import (
	"regexp"
	"strconv"
	"strings"

	"hone/internal/types"
)

// parseFunc turns raw runner output into normalized errors.
type parseFunc func(stdout, stderr string) []types.NormalizedError

// parsers is the dispatch table keyed on the tool tag. Unknown runners fall
// through to the passthrough parser.
var parsers = map[types.Tool]parseFunc{
	types.ToolTSC:     parseTSC,
	types.ToolESLint:  parseESLint,
	types.ToolVitest:  parseVitest,
	types.ToolUnknown: parseUnknown,
}

// ToolFromRunner maps a runner name to its tool tag.
func ToolFromRunner(runner string) types.Tool {
	switch strings.ToLower(strings.TrimSpace(runner)) {
	case "tsc", "typescript":
		return types.ToolTSC
	case "eslint":
		return types.ToolESLint
	case "vitest":
		return types.ToolVitest
	default:
		return types.ToolUnknown
	}
}

// ExtractErrors returns the normalized errors for one execution result,
// parsing raw output only when the session did not already normalize them.
func ExtractErrors(res types.ExecutionResult) []types.NormalizedError {
	if len(res.Errors) > 0 {
		return res.Errors
	}
	tool := ToolFromRunner(res.Runner)
	return parsers[tool](res.Stdout, res.Stderr)
}

// tsc diagnostics: src/api.ts(10,5): error TS2322: Type 'string' is not...
var tscRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning) (TS\d+): (.+)$`)

func parseTSC(stdout, stderr string) []types.NormalizedError {
	var errs []types.NormalizedError
	for _, line := range splitLines(stdout, stderr) {
		m := tscRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		errs = append(errs, types.NormalizedError{
			Tool:     types.ToolTSC,
			File:     m[1],
			Line:     lineNo,
			Column:   col,
			Code:     m[5],
			Message:  m[6],
			Severity: types.Severity(m[4]),
		})
	}
	return errs
}

// eslint stylish: a bare file path line followed by indented diagnostics
//
//	src/api.ts
//	  12:5  error  'x' is never used  no-unused-vars
var eslintDiagRe = regexp.MustCompile(`^\s+(\d+):(\d+)\s+(error|warning)\s+(.+?)\s{2,}(\S+)$`)

func parseESLint(stdout, stderr string) []types.NormalizedError {
	var errs []types.NormalizedError
	file := ""
	for _, line := range splitLines(stdout, stderr) {
		if m := eslintDiagRe.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			errs = append(errs, types.NormalizedError{
				Tool:     types.ToolESLint,
				File:     file,
				Line:     lineNo,
				Column:   col,
				Code:     m[5],
				Message:  m[4],
				Severity: types.Severity(m[3]),
			})
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			if !strings.Contains(trimmed, " ") {
				file = trimmed
			}
		}
	}
	return errs
}

// vitest failures:
//
//	FAIL  src/math.test.ts > add > handles negatives
//	AssertionError: expected -1 to be 1
var vitestFailRe = regexp.MustCompile(`^\s*FAIL\s+(\S+)(?:\s*>\s*(.+))?$`)
var vitestErrRe = regexp.MustCompile(`^\s*((?:\w+)?Error\b.*)$`)

func parseVitest(stdout, stderr string) []types.NormalizedError {
	lines := splitLines(stdout, stderr)
	var errs []types.NormalizedError
	for i, line := range lines {
		m := vitestFailRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		msg := "test failed"
		if m[2] != "" {
			msg = "test failed: " + strings.TrimSpace(m[2])
		}
		for j := i + 1; j < len(lines) && j <= i+3; j++ {
			if em := vitestErrRe.FindStringSubmatch(lines[j]); em != nil {
				msg = strings.TrimSpace(em[1])
				break
			}
			if vitestFailRe.MatchString(lines[j]) {
				break
			}
		}
		errs = append(errs, types.NormalizedError{
			Tool:     types.ToolVitest,
			File:     m[1],
			Message:  msg,
			Severity: types.SeverityError,
		})
	}
	return errs
}

// parseUnknown passes raw output through as a single diagnostic. Stderr wins
// over stdout; empty output yields nothing.
func parseUnknown(stdout, stderr string) []types.NormalizedError {
	out := strings.TrimSpace(stderr)
	if out == "" {
		out = strings.TrimSpace(stdout)
	}
	if out == "" {
		return nil
	}
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		out = strings.TrimSpace(out[:idx])
	}
	return []types.NormalizedError{{
		Tool:     types.ToolUnknown,
		Message:  truncate(out, 200),
		Severity: types.SeverityError,
	}}
}

func splitLines(stdout, stderr string) []string {
	var lines []string
	if stdout != "" {
		lines = append(lines, strings.Split(stdout, "\n")...)
	}
	if stderr != "" {
		lines = append(lines, strings.Split(stderr, "\n")...)
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
