package plan

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Limit is a per-feature quota. Unlimited disables enforcement.
type Limit int64

// Unlimited indicates no limit for a feature (-1 chosen for SQL compatibility).
const Unlimited Limit = -1

func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// Allows reports whether current+amount fits within the limit. The sum is
// never computed, so huge amounts cannot wrap around and pass.
func (l Limit) Allows(current, amount int64) bool {
	if l.IsUnlimited() {
		return true
	}
	return amount <= int64(l)-current
}

// Remaining returns how much is left before the limit is reached, never negative.
// Returns -1 for unlimited.
func (l Limit) Remaining(current int64) int64 {
	if l.IsUnlimited() {
		return -1
	}
	return max(int64(l)-current, 0)
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// ParseLimit accepts a non-negative integer or "unlimited".
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") || s == "-1" {
		return Unlimited, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}
	return Limit(n), nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseLimit(node.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Limit) MarshalYAML() (any, error) {
	if l.IsUnlimited() {
		return "unlimited", nil
	}
	return int64(l), nil
}

// EntitlementTable maps features included in a plan to their limits.
// A feature missing from the table is not included.
type EntitlementTable map[FeatureID]Limit

// Lookup returns the limit for a feature and whether the plan includes it.
func (t EntitlementTable) Lookup(feature FeatureID) (Limit, bool) {
	limit, ok := t[feature]
	return limit, ok
}

func (t EntitlementTable) Includes(feature FeatureID) bool {
	_, ok := t[feature]
	return ok
}

// Features returns the included features in stable order.
func (t EntitlementTable) Features() []FeatureID {
	return slices.Sorted(maps.Keys(t))
}

func (t EntitlementTable) Clone() EntitlementTable {
	if t == nil {
		return EntitlementTable{}
	}
	return maps.Clone(t)
}
