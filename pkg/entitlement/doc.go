// Package entitlement resolves which plan a tenant is on and what that plan
// grants for a given feature.
//
// The tenant-to-plan mapping comes from a TenantDirectory (usually the
// subscription lifecycle). Plan IDs are cached per tenant for a short TTL and
// concurrent misses for the same tenant are collapsed into one directory call.
// Writers call Invalidate after every committed plan or state change, so the
// TTL only bounds staleness for changes made by other processes.
package entitlement
