// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, event.go, session.go, persona.go, etc.)
// with shared types and cross-cutting interfaces. Apart from JSON decoding of the webhook
// payload and the small immutable registries, there is no implementation code here - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
