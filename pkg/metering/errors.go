package metering

import "errors"

var (
	ErrFeatureNotIncluded = errors.New("metering: feature is not included in the tenant's plan")
	ErrAlertNotFound      = errors.New("metering: alert not found")
	ErrInvalidThreshold   = errors.New("metering: threshold must be between 1 and 100")
)
