package audit

import (
	"path/filepath"
	"strings"
)

// TableFilter decides whether mutations on a table are audited.
type TableFilter interface {
	ShouldAudit(tableName string) bool
}

// TableFilterFunc is a function type that implements the TableFilter interface.
type TableFilterFunc func(string) bool

func (f TableFilterFunc) ShouldAudit(tableName string) bool {
	return f(tableName)
}

// NewExcludePatternFilter creates a TableFilter that skips tables matching
// any of the provided glob patterns.
func NewExcludePatternFilter(patterns ...string) TableFilter {
	return TableFilterFunc(func(tableName string) bool {
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, tableName); matched {
				return false
			}
		}
		return true
	})
}

// NewExcludePrefixFilter creates a TableFilter that skips tables whose
// names start with any of the provided prefixes.
func NewExcludePrefixFilter(prefixes ...string) TableFilter {
	return TableFilterFunc(func(tableName string) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(tableName, prefix) {
				return false
			}
		}
		return true
	})
}

// NewIncludePatternFilter creates a TableFilter that audits only tables
// matching any of the provided glob patterns.
func NewIncludePatternFilter(patterns ...string) TableFilter {
	return TableFilterFunc(func(tableName string) bool {
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, tableName); matched {
				return true
			}
		}
		return false
	})
}

// TableFilters combines filters; a table is audited only when every
// filter agrees.
type TableFilters []TableFilter

func (filters TableFilters) ShouldAudit(tableName string) bool {
	for _, filter := range filters {
		if !filter.ShouldAudit(tableName) {
			return false
		}
	}
	return true
}
