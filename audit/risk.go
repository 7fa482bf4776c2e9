package audit

import (
	"slices"
)

// RiskRule pairs a predicate with the level assigned when it matches.
type RiskRule struct {
	Name  string
	Level RiskLevel
	Match func(table string, action Action, changedFields []string) bool
}

// RiskRules is an ordered rule list evaluated top to bottom; the first
// matching rule wins.
type RiskRules []RiskRule

// Classify returns the risk level of a mutation. Mutations matching no
// rule classify as LOW.
func (rules RiskRules) Classify(table string, action Action, changedFields []string) RiskLevel {
	for _, rule := range rules {
		if rule.Match(table, action, changedFields) {
			return rule.Level
		}
	}
	return RiskLow
}

// DefaultRiskRules returns the classification used for the equipment
// inventory schema. Order matters: identity tables outrank device rules,
// which outrank the generic DELETE rule, so a DELETE on the users table
// classifies CRITICAL even though the generic DELETE rule would also
// textually match it.
func DefaultRiskRules() RiskRules {
	identityTables := []string{"users", "roles", "user_roles"}
	leafDeviceTables := []string{"plcs", "tags"}
	networkedTables := []string{"equipment", "plcs"}

	return RiskRules{
		{
			Name:  "identity_delete",
			Level: RiskCritical,
			Match: func(table string, action Action, _ []string) bool {
				return action == ActionDelete && slices.Contains(identityTables, table)
			},
		},
		{
			Name:  "identity_write",
			Level: RiskHigh,
			Match: func(table string, _ Action, _ []string) bool {
				return slices.Contains(identityTables, table)
			},
		},
		{
			Name:  "device_delete",
			Level: RiskHigh,
			Match: func(table string, action Action, _ []string) bool {
				return action == ActionDelete && slices.Contains(leafDeviceTables, table)
			},
		},
		{
			Name:  "network_address_change",
			Level: RiskMedium,
			Match: func(table string, action Action, changedFields []string) bool {
				return action == ActionUpdate &&
					slices.Contains(networkedTables, table) &&
					slices.Contains(changedFields, "ip_address")
			},
		},
		{
			Name:  "any_delete",
			Level: RiskMedium,
			Match: func(_ string, action Action, _ []string) bool {
				return action == ActionDelete
			},
		},
	}
}
