package reflector

import (
	"path/filepath"
	"regexp"
	"strings"

	"hone/internal/types"
)

// Canonical pattern labels. Tool-specific variants collapse onto these so one
// insight covers a family of diagnostics.
const (
	PatternTypeError        = "type-error"
	PatternModuleResolution = "module-resolution"
	PatternAssertionFailure = "assertion-failure"
	PatternTestFailure      = "test-failure"
	PatternDiscoveryChain   = "discovery-chain"
	PatternHarmfulFeedback  = "harmful-bullet-feedback"
)

// tsc code families.
var tscTypeErrorCodes = map[string]bool{
	"TS2322": true, // type not assignable
	"TS2345": true, // argument not assignable
	"TS2739": true, // missing properties
	"TS2741": true, // property missing in type
}

var tscModuleCodes = map[string]bool{
	"TS2307": true, // cannot find module
	"TS2305": true, // module has no exported member
	"TS2792": true, // cannot find module, did you mean
}

// PatternFor derives the canonical pattern label for a diagnostic. Unmatched
// diagnostics pattern on their code when present, else a stripped message.
func PatternFor(e types.NormalizedError) string {
	msg := strings.ToLower(e.Message)

	switch e.Tool {
	case types.ToolTSC:
		if tscTypeErrorCodes[e.Code] || strings.Contains(msg, "is not assignable to") {
			return PatternTypeError
		}
		if tscModuleCodes[e.Code] || strings.Contains(msg, "cannot find module") {
			return PatternModuleResolution
		}
		if e.Code != "" {
			return strings.ToLower(e.Code)
		}

	case types.ToolESLint:
		if strings.Contains(strings.ToLower(e.Code), "import") || strings.Contains(msg, "unable to resolve") {
			return PatternModuleResolution
		}
		if e.Code != "" {
			return strings.ToLower(e.Code)
		}

	case types.ToolVitest:
		if strings.Contains(msg, "assertionerror") || strings.HasPrefix(msg, "expected") {
			return PatternAssertionFailure
		}
		return PatternTestFailure
	}

	return stripSignature(e.Message, 40)
}

// signature keys one batch cluster.
type signature struct {
	errPattern  string
	toolPattern types.Tool
	filePattern string
}

var (
	singleQuoteRe = regexp.MustCompile(`'[^']*'`)
	doubleQuoteRe = regexp.MustCompile(`"[^"]*"`)
	backtickRe    = regexp.MustCompile("`[^`]*`")
	digitsRe      = regexp.MustCompile(`\d+`)
)

// stripSignature removes quoted identifiers and digits so diagnostics that
// differ only in names or positions share a signature, then truncates.
func stripSignature(msg string, max int) string {
	s := singleQuoteRe.ReplaceAllString(msg, "_")
	s = doubleQuoteRe.ReplaceAllString(s, "_")
	s = backtickRe.ReplaceAllString(s, "_")
	s = digitsRe.ReplaceAllString(s, "")
	s = types.Normalize(s)
	return truncate(s, max)
}

// clusterKey builds the batch-mode signature for one diagnostic. Files
// cluster by extension: the same error in ten .ts files is one pattern, not
// ten.
func clusterKey(e types.NormalizedError) signature {
	return signature{
		errPattern:  stripSignature(e.Message, 60),
		toolPattern: e.Tool,
		filePattern: filepath.Ext(e.File),
	}
}
