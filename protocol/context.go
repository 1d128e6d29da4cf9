package protocol

import (
	"context"

	"github.com/google/uuid"
)

// WithTransactionID attaches an identifier of a Transaction to a Context.
// Executors of the Transaction use the attached ID when logging it, rather
// than generating their own.
func WithTransactionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, transactionIDCtxKey{}, id)
}

// GetTransactionID retrieves an attached Transaction ID from a Context.
func GetTransactionID(ctx context.Context) (uuid.UUID, bool) {
	var id, ok = ctx.Value(transactionIDCtxKey{}).(uuid.UUID)
	return id, ok
}

type transactionIDCtxKey struct{}
