package db

import (
	"context"

	"github.com/ukydev/fleet-maintenance/internal/submission"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SubmissionCollection defines the interface for submission journal operations.
type SubmissionCollection interface {
	submission.Journal
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (SubmissionCursor, error)
}

// SubmissionCursor defines the interface for submission cursor operations.
type SubmissionCursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}
