package table

import (
	"context"
	"fmt"
)

// command is a function run on the table loop on behalf of another goroutine.
type command struct {
	fn   func(t *Table) error
	done chan error
}

// Submit runs fn on the next tick and waits for its result.
func (t *Table) Submit(ctx context.Context, fn func(t *Table) error) error {
	select {
	case <-t.stopped:
		return ErrTableStopped
	default:
	}

	cmd := &command{fn: fn, done: make(chan error, 1)}
	if err := t.commands.Enqueue(cmd); err != nil {
		return fmt.Errorf("failed to enqueue command: %v", err)
	}
	select {
	case err := <-cmd.done:
		return err
	case <-t.stopped:
		return ErrTableStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Table) processCommands() {
	for _, item := range t.commands.ReadAllMessages() {
		cmd, ok := item.(*command)
		if !ok {
			t.logger.Error("Failed to cast command %T", item)
			continue
		}
		cmd.done <- cmd.fn(t)
	}
}

// failCommands releases callers still waiting when the loop exits.
func (t *Table) failCommands() {
	for _, item := range t.commands.ReadAllMessages() {
		if cmd, ok := item.(*command); ok {
			cmd.done <- ErrTableStopped
		}
	}
}
