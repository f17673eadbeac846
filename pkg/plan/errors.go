package plan

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan: plan not found")
	ErrFeatureNotFound          = errors.New("plan: feature not found")
	ErrInvalidPlanConfiguration = errors.New("plan: invalid plan configuration")
	ErrNoDefaultPlan            = errors.New("plan: default plan is not configured")
	ErrInvalidLimit             = errors.New("plan: invalid limit value")
	ErrFailedToLoadCatalog      = errors.New("plan: failed to load catalog")
)
