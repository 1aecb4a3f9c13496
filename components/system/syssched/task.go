package syssched

import "context"

// Task represents an entity of the execution.
type Task interface {
	// Run executes a single operational loop.
	Run(ctx context.Context) error
}

// FuncTask is a function type that implements the Task interface.
type FuncTask func(ctx context.Context) error

// Run calls the function itself to fulfill the Task interface.
func (t FuncTask) Run(ctx context.Context) error {
	return t(ctx)
}
