package entitlement

import "errors"

var (
	ErrTenantNotFound = errors.New("entitlement: tenant not found")
	ErrResolveFailed  = errors.New("entitlement: failed to resolve plan")
)
