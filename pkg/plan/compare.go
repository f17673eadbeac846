package plan

import (
	"maps"
	"slices"
)

// LimitChange describes how a feature limit differs between two plans.
type LimitChange struct {
	From Limit `json:"from"`
	To   Limit `json:"to"`
}

// Comparison describes what a tenant gains and loses when moving between plans.
type Comparison struct {
	NewFeatures     []FeatureID               `json:"new_features"`
	LostFeatures    []FeatureID               `json:"lost_features"`
	IncreasedLimits map[FeatureID]LimitChange `json:"increased_limits"`
	DecreasedLimits map[FeatureID]LimitChange `json:"decreased_limits"`
}

// IsDowngrade reports whether the target plan removes or reduces anything.
func (c Comparison) IsDowngrade() bool {
	return len(c.LostFeatures) > 0 || len(c.DecreasedLimits) > 0
}

// ComparePlans analyzes entitlement differences between current and target.
func ComparePlans(current, target Plan) Comparison {
	comparison := Comparison{
		NewFeatures:     make([]FeatureID, 0),
		LostFeatures:    make([]FeatureID, 0),
		IncreasedLimits: make(map[FeatureID]LimitChange),
		DecreasedLimits: make(map[FeatureID]LimitChange),
	}

	for _, feature := range slices.Sorted(maps.Keys(target.Entitlements)) {
		targetLimit := target.Entitlements[feature]
		currentLimit, exists := current.Entitlements[feature]
		if !exists {
			comparison.NewFeatures = append(comparison.NewFeatures, feature)
			continue
		}
		if targetLimit == currentLimit {
			continue
		}

		change := LimitChange{From: currentLimit, To: targetLimit}
		// Unlimited-to-limited counts as a decrease.
		switch {
		case currentLimit.IsUnlimited():
			comparison.DecreasedLimits[feature] = change
		case targetLimit.IsUnlimited(), targetLimit > currentLimit:
			comparison.IncreasedLimits[feature] = change
		default:
			comparison.DecreasedLimits[feature] = change
		}
	}

	for _, feature := range slices.Sorted(maps.Keys(current.Entitlements)) {
		if _, exists := target.Entitlements[feature]; !exists {
			comparison.LostFeatures = append(comparison.LostFeatures, feature)
		}
	}

	return comparison
}

// Covers reports whether p includes feature with room for required units.
func (p Plan) Covers(feature FeatureID, required int64) bool {
	limit, ok := p.Limit(feature)
	if !ok {
		return false
	}
	return limit.IsUnlimited() || int64(limit) >= required
}
