// Package core contains canonical payment-reconciliation domain contracts,
// entities, and configuration. Lower-level adapters must depend on this
// package; core must not depend on gateway-specific or transport-specific
// adapters.
package core
