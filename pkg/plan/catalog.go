package plan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Catalog provides read access to plans and features.
// Implementations must return copies; callers may mutate the results freely.
type Catalog interface {
	// Plan returns the plan with the given ID or ErrPlanNotFound.
	Plan(ctx context.Context, id string) (Plan, error)

	// Plans returns all plans ordered by rank, then by monthly price.
	Plans(ctx context.Context) ([]Plan, error)

	// Feature returns the feature definition or ErrFeatureNotFound.
	Feature(ctx context.Context, id FeatureID) (Feature, error)

	// DefaultPlan returns the plan assigned to tenants without a subscription.
	DefaultPlan(ctx context.Context) (Plan, error)
}

// CatalogConfig is the static description of a catalog.
type CatalogConfig struct {
	DefaultPlanID string    `yaml:"default_plan"`
	Features      []Feature `yaml:"features"`
	Plans         []Plan    `yaml:"plans"`
}

type inMemCatalog struct {
	mu            sync.RWMutex
	defaultPlanID string
	plans         map[string]Plan
	features      map[FeatureID]Feature
}

// NewCatalog returns an in-memory Catalog holding deep copies of the given configuration.
func NewCatalog(cfg CatalogConfig) (Catalog, error) {
	c := &inMemCatalog{
		defaultPlanID: cfg.DefaultPlanID,
		plans:         make(map[string]Plan, len(cfg.Plans)),
		features:      make(map[FeatureID]Feature, len(cfg.Features)),
	}

	for _, f := range cfg.Features {
		if f.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("feature with empty ID"))
		}
		if f.Period == "" {
			f.Period = PeriodMonthly
		}
		if !f.Period.Valid() {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("feature %s has unknown period %q", f.ID, f.Period))
		}
		if _, exists := c.features[f.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate feature %s", f.ID))
		}
		c.features[f.ID] = f
	}

	for _, p := range cfg.Plans {
		if _, exists := c.plans[p.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan %s", p.ID))
		}
		if p.Interval == "" {
			p.Interval = BillingIntervalMonthly
			if p.Price.Amount == 0 {
				p.Interval = BillingIntervalNone
			}
		}
		c.plans[p.ID] = p.Clone()
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on invalid configuration.
func MustNewCatalog(cfg CatalogConfig) Catalog {
	c, err := NewCatalog(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *inMemCatalog) Plan(_ context.Context, id string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p.Clone(), nil
}

func (c *inMemCatalog) Plans(_ context.Context) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Clone())
	}
	SortPlans(out)
	return out, nil
}

func (c *inMemCatalog) Feature(_ context.Context, id FeatureID) (Feature, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.features[id]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	return f, nil
}

func (c *inMemCatalog) DefaultPlan(ctx context.Context) (Plan, error) {
	if c.defaultPlanID == "" {
		return Plan{}, ErrNoDefaultPlan
	}
	return c.Plan(ctx, c.defaultPlanID)
}

// validate ensures plan configurations are internally consistent.
// Catches configuration errors at startup instead of at request time.
func (c *inMemCatalog) validate() error {
	if len(c.plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("at least one plan is required"))
	}

	if c.defaultPlanID != "" {
		if _, ok := c.plans[c.defaultPlanID]; !ok {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("default plan %s is not defined", c.defaultPlanID))
		}
	}

	for _, id := range slices.Sorted(maps.Keys(c.plans)) {
		p := c.plans[id]
		if p.ID == "" {
			return errors.Join(ErrInvalidPlanConfiguration, errors.New("plan with empty ID"))
		}
		if p.TrialDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", p.ID, p.TrialDays))
		}
		if p.Price.Amount < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative price", p.ID))
		}
		switch p.Interval {
		case BillingIntervalNone, BillingIntervalMonthly, BillingIntervalAnnual:
		default:
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has unknown billing interval %q", p.ID, p.Interval))
		}
		for feature, limit := range p.Entitlements {
			if _, ok := c.features[feature]; !ok {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s references undeclared feature %s", p.ID, feature))
			}
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid limit %d for %s", p.ID, limit, feature))
			}
		}
	}
	return nil
}

// SortPlans orders plans by rank, then monthly price, then ID.
func SortPlans(plans []Plan) {
	slices.SortStableFunc(plans, func(a, b Plan) int {
		return cmp.Or(
			cmp.Compare(a.Rank, b.Rank),
			cmp.Compare(a.MonthlyPrice(), b.MonthlyPrice()),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
