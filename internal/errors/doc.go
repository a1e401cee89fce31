// Package errors defines error types for the ima client.
//
// This package provides structured error types that wrap the failure
// scenarios of the upstream knowledge-base API: rejected input, auth
// failures, transport faults, and stream-integrity problems. All error
// types support error unwrapping and can be checked using errors.Is and
// errors.As. Classification of auth failures lives here too, so the retry
// orchestrator never inspects error text itself.
package errors
