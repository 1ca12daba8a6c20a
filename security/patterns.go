package security

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// PatternRecord is one externally configured blocked-command rule.
// Records are evaluated in file order; the first match is terminal.
type PatternRecord struct {
	Pattern         string `json:"pattern"`
	Reason          string `json:"reason"`
	CaseInsensitive bool   `json:"case_insensitive"`
	// Flags is the legacy field; "i" means case-insensitive.
	Flags       string `json:"flags,omitempty"`
	AdminBypass bool   `json:"admin_bypass"`
}

type compiledPattern struct {
	re          *regexp.Regexp
	reason      string
	adminBypass bool
}

// patternSet is an immutable compiled snapshot of the configured rules.
// It is swapped atomically on reload.
type patternSet struct {
	version  int
	patterns []compiledPattern
}

// LoadPatternRecords reads a pattern file. The file holds either a bare
// JSON array or an object with a "patterns" key.
func LoadPatternRecords(path string) ([]PatternRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	var records []PatternRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}
	var wrapper struct {
		Patterns []PatternRecord `json:"patterns"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}
	return wrapper.Patterns, nil
}

// compilePatterns compiles records into a matchable set, skipping records
// whose regex does not compile. Returns the set and the names of skipped
// patterns.
func compilePatterns(records []PatternRecord, version int) (*patternSet, []string) {
	set := &patternSet{version: version}
	var skipped []string
	for _, rec := range records {
		expr := rec.Pattern
		if rec.CaseInsensitive || rec.Flags == "i" {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			skipped = append(skipped, rec.Pattern)
			continue
		}
		set.patterns = append(set.patterns, compiledPattern{
			re:          re,
			reason:      rec.Reason,
			adminBypass: rec.AdminBypass,
		})
	}
	return set, skipped
}
