package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/famsync/internal/client/storage"
)

func (c *Cli) DeadLetterList(ctx context.Context) error {
	letters, err := c.deadLetters.DeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}
	return c.render(deadLetterTemplate, letters)
}

// DeadLetterRetry puts a rejected mutation back at the end of the queue
func (c *Cli) DeadLetterRetry(ctx context.Context, seq uint64) error {
	newSeq, err := c.deadLetters.Requeue(ctx, seq)
	if err != nil {
		return deadLetterError(seq, err)
	}
	c.io.Printf("✓ Mutation #%d queued again as #%d\n", seq, newSeq)
	return nil
}

func (c *Cli) DeadLetterDiscard(ctx context.Context, seq uint64) error {
	if err := c.deadLetters.Discard(ctx, seq); err != nil {
		return deadLetterError(seq, err)
	}
	c.io.Printf("✓ Mutation #%d discarded\n", seq)
	return nil
}

func deadLetterError(seq uint64, err error) error {
	if errors.Is(err, storage.ErrDeadLetterNotFound) {
		return fmt.Errorf("no dead letter #%d, see 'famsync deadletter list'", seq)
	}
	return err
}
