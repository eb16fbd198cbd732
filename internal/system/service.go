// Package system defines the lifecycle contract for long-running components.
package system

import "context"

// Service represents a lifecycle-managed component. Background modules
// implement this interface so the runtime can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
