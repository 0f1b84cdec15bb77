package services

import "context"

// Checker reports whether an external dependency is reachable
type Checker interface {
	// Type returns the dependency kind, e.g. "postgres"
	Type() string

	// HealthCheck returns nil when the dependency answers
	HealthCheck(ctx context.Context) error
}

// BaseChecker provides common functionality for checkers
type BaseChecker struct {
	checkerType string
}

// Type returns the dependency type
func (c *BaseChecker) Type() string {
	return c.checkerType
}
