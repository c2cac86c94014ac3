package utils

import (
	"regexp"
	"strings"
)

// CompileRegexPatterns compiles patterns in order, skipping blanks.
// The first invalid pattern aborts with ErrConfigValidation.
func CompileRegexPatterns(field string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "%s: invalid regex pattern #%d (%q): %v", field, i+1, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
