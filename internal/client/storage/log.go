package storage

import (
	"context"

	"github.com/iudanet/famsync/internal/models"
)

// MutationLog is the durable, ordered queue of local changes not yet
// acknowledged by the server.
type MutationLog interface {
	// Append assigns the next sequence number and persists the mutation
	// before returning. Nothing is stored if an error is returned.
	Append(ctx context.Context, m *models.MutationRecord) (uint64, error)

	// Drain returns up to max pending mutations in sequence order without removing them
	Drain(ctx context.Context, max int) ([]*models.MutationRecord, error)

	// Commit atomically removes acknowledged mutations. Unknown seqs are ignored.
	Commit(ctx context.Context, seqs []uint64) error

	// Pending returns every queued mutation in sequence order
	Pending(ctx context.Context) ([]*models.MutationRecord, error)

	// PendingCount returns the queue length
	PendingCount(ctx context.Context) (int, error)

	// MarkAttempt increments Attempts and records reason on each mutation
	MarkAttempt(ctx context.Context, seqs []uint64, reason string) error
}

// DeadLetterStorage keeps mutations the server rejected permanently.
type DeadLetterStorage interface {
	// DeadLetters returns all dead letters in original sequence order
	DeadLetters(ctx context.Context) ([]*models.DeadLetter, error)

	// Requeue moves a dead letter back to the end of the log with Attempts reset.
	// Returns the new sequence number.
	Requeue(ctx context.Context, seq uint64) (uint64, error)

	// Discard drops a dead letter for good
	Discard(ctx context.Context, seq uint64) error
}
