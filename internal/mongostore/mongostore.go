// Package mongostore keeps sessions in MongoDB, one document per user.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/qualifier/internal/model"
)

const collectionName = "lead_sessions"

// sessionDoc is the stored shape of a session. The user id is the document id.
type sessionDoc struct {
	UserID          string                `bson:"_id"`
	ID              string                `bson:"sessionId"`
	Status          model.SessionStatus   `bson:"status"`
	Version         string                `bson:"version"`
	StartedAt       time.Time             `bson:"startedAt"`
	CompletedAt     *time.Time            `bson:"completedAt,omitempty"`
	UpdatedAt       time.Time             `bson:"updatedAt"`
	LastQuestionID  string                `bson:"lastQuestionId,omitempty"`
	QuestionShownAt *time.Time            `bson:"questionShownAt,omitempty"`
	Responses       []model.Response      `bson:"responses"`
	Score           *int                  `bson:"score,omitempty"`
	Temperature     model.Temperature     `bson:"temperature,omitempty"`
	ScoreBreakdown  *model.ScoreBreakdown `bson:"scoreBreakdown,omitempty"`
}

func toDoc(s *model.Session) sessionDoc {
	d := sessionDoc{
		UserID:          s.UserID,
		ID:              s.ID,
		Status:          s.Status,
		Version:         s.Version,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		UpdatedAt:       s.UpdatedAt,
		LastQuestionID:  s.LastQuestionID,
		QuestionShownAt: s.QuestionShownAt,
		Responses:       s.Responses,
		Score:           s.Score,
		ScoreBreakdown:  s.ScoreBreakdown,
		Temperature:     s.Temperature(),
	}
	if d.Responses == nil {
		d.Responses = []model.Response{}
	}
	return d
}

func (d sessionDoc) session() *model.Session {
	return &model.Session{
		ID:              d.ID,
		UserID:          d.UserID,
		Status:          d.Status,
		Version:         d.Version,
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
		UpdatedAt:       d.UpdatedAt,
		LastQuestionID:  d.LastQuestionID,
		QuestionShownAt: d.QuestionShownAt,
		Responses:       d.Responses,
		Score:           d.Score,
		ScoreBreakdown:  d.ScoreBreakdown,
	}
}

// Store is a session store backed by a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri and returns a store on database db.
func Connect(ctx context.Context, uri, db string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client, db)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, db string) *Store {
	return &Store{
		client:     client,
		collection: client.Database(db).Collection(collectionName),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "temperature", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// LoadSession returns the session of a user, or model.ErrSessionNotFound.
func (s *Store) LoadSession(ctx context.Context, userID string) (*model.Session, error) {
	var d sessionDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", userID, err)
	}
	return d.session(), nil
}

// SaveSession replaces the user's document, creating it when missing.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sess.UserID}, toDoc(sess),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session for %s: %w", sess.UserID, err)
	}
	return nil
}

// ListSessions returns sessions matching the filter, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return s.find(ctx, filterDoc(f), opts)
}

// ListStale returns in-progress sessions not touched since before.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]model.Session, error) {
	filter := bson.M{
		"status":    model.StatusInProgress,
		"updatedAt": bson.M{"$lt": before},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

// ExportAllSessions flattens every stored session for export.
func (s *Store) ExportAllSessions(ctx context.Context, questions model.QuestionLookup) ([]model.LeadResult, error) {
	sessions, err := s.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		return nil, err
	}
	results := make([]model.LeadResult, 0, len(sessions))
	for _, sess := range sessions {
		results = append(results, model.NewLeadResult(sess, questions))
	}
	return results, nil
}

func filterDoc(f model.SessionFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Temperature != "" {
		filter["temperature"] = f.Temperature
	}
	return filter
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Session, error) {
	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer cur.Close(ctx)

	var sessions []model.Session
	for cur.Next(ctx) {
		var d sessionDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, *d.session())
	}
	return sessions, cur.Err()
}
