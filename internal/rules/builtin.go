package rules

import "github.com/opensource-finance/repayplan/internal/domain"

// Builtin returns the document used when no rules source is configured and
// the repository holds none. Every field falls back to its default.
func Builtin() *domain.RulesDocument {
	return &domain.RulesDocument{Version: domain.DefaultRulesVersion}
}
