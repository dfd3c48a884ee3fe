// Package retry owns deferred reconciliation. Deliveries that fail inline
// with a retryable error are persisted as tasks and re-attempted with
// exponential backoff until they converge or are dead-lettered.
package retry
