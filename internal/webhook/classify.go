package webhook

import (
	"fmt"
	"regexp"

	"github.com/cam3ron2/commit-ingest/internal/model"
)

// CompileExclusionPatterns compiles not-built commit patterns as case-insensitive
// expressions that must match the whole message.
func CompileExclusionPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		expression, err := regexp.Compile("(?i)^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("compile not-built pattern %d: %w", i, err)
		}
		compiled = append(compiled, expression)
	}
	return compiled, nil
}

// Classify derives a commit's type from its parent count and message.
func Classify(parentCount int, message string, exclusions []*regexp.Regexp) model.CommitType {
	if parentCount > 1 {
		return model.CommitTypeMerge
	}
	if len(exclusions) == 0 {
		return model.CommitTypeNew
	}
	for _, pattern := range exclusions {
		if pattern.MatchString(message) {
			return model.CommitTypeNotBuilt
		}
	}
	return model.CommitTypeNew
}
