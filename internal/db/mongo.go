package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/submission"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SubmissionsCollection is the collection name of the submission journal.
const SubmissionsCollection = "submissions"

var (
	ErrNoMongoURI    = errors.New("MONGO_URI is not set")
	errNilCollection = errors.New("mongo collection is nil")
)

// ConnectMongo connects to MongoDB at uri, falling back to the MONGO_URI
// environment variable.
func ConnectMongo(uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = os.Getenv("MONGO_URI")
	}
	if uri == "" {
		return nil, ErrNoMongoURI
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoSubmissionCollection stores the submission journal in MongoDB.
type MongoSubmissionCollection struct {
	Collection *mongo.Collection
}

// NewMongoSubmissionCollection returns the journal in database dbName.
func NewMongoSubmissionCollection(client *mongo.Client, dbName string) *MongoSubmissionCollection {
	return &MongoSubmissionCollection{Collection: client.Database(dbName).Collection(SubmissionsCollection)}
}

// EnsureIndexes creates the indexes used by ListIncomplete.
func (c *MongoSubmissionCollection) EnsureIndexes(ctx context.Context) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "photos.state", Value: 1}}},
	})
	return err
}

// Save upserts a submission by id.
func (c *MongoSubmissionCollection) Save(ctx context.Context, s *submission.Submission) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": s.ID}, s, options.Replace().SetUpsert(true))
	return err
}

// Get loads a submission by id.
func (c *MongoSubmissionCollection) Get(ctx context.Context, id string) (*submission.Submission, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var s submission.Submission
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, submission.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// IncompleteFilter matches submissions whose report was never created or
// that still have an unconfirmed photo.
func IncompleteFilter() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"target_id": 0},
		bson.M{"photos": bson.M{"$elemMatch": bson.M{"state": bson.M{"$ne": string(submission.StateConfirmed)}}}},
	}}
}

// ListIncomplete returns unfinished submissions, oldest first.
func (c *MongoSubmissionCollection) ListIncomplete(ctx context.Context) ([]*submission.Submission, error) {
	cursor, err := c.Find(ctx, IncompleteFilter(), options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*submission.Submission
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a submission.
func (c *MongoSubmissionCollection) Delete(ctx context.Context, id string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// mongoSubmissionCursor wraps a MongoDB cursor for submission queries.
type mongoSubmissionCursor struct {
	cursor *mongo.Cursor
}

// All retrieves all results from the cursor.
func (m *mongoSubmissionCursor) All(ctx context.Context, out interface{}) error {
	return m.cursor.All(ctx, out)
}

// Close closes the cursor.
func (m *mongoSubmissionCursor) Close(ctx context.Context) error {
	return m.cursor.Close(ctx)
}

// Find queries submissions from the collection.
func (c *MongoSubmissionCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (SubmissionCursor, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoSubmissionCursor{cursor: cursor}, nil
}
