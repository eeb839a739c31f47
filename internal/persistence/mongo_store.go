package persistence

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/orchestra/pkg/api"
)

// MongoStore is a Store backed by MongoDB. Sessions and projects live in two
// collections of the same database, keyed by session id and project name.
type MongoStore struct {
	sessions *mongo.Collection
	projects *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "orchestra" if empty.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "orchestra"
	}
	db := client.Database(dbName)
	return &MongoStore{
		sessions: db.Collection("sessions"),
		projects: db.Collection("projects"),
	}
}

type mongoSessionDoc struct {
	ID          string `bson:"_id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
	Status      string `bson:"status"`
	CreatedAt   int64  `bson:"created_at"`
	UpdatedAt   int64  `bson:"updated_at"`
	Metadata    []byte `bson:"metadata,omitempty"`
}

type mongoProjectDoc struct {
	Name        string `bson:"_id"`
	Description string `bson:"description"`
	SessionID   string `bson:"session_id"`
	CreatedAt   int64  `bson:"created_at"`
}

func (d mongoSessionDoc) session() (*api.Session, error) {
	md, err := DecodeMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}
	sess := api.NewSession(d.ID)
	sess.Name = d.Name
	sess.Description = d.Description
	if d.Status != "" {
		sess.Status = api.SessionStatus(d.Status)
	}
	sess.CreatedAt = fromUnixNano(d.CreatedAt)
	sess.UpdatedAt = fromUnixNano(d.UpdatedAt)
	sess.Metadata = md
	return sess, nil
}

func (d mongoProjectDoc) project() *api.Project {
	return &api.Project{
		Name:        d.Name,
		Description: d.Description,
		SessionID:   d.SessionID,
		CreatedAt:   fromUnixNano(d.CreatedAt),
	}
}

func (s *MongoStore) SaveSession(ctx context.Context, sess *api.Session) error {
	meta, err := EncodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = s.sessions.InsertOne(ctx, mongoSessionDoc{
		ID:          sess.ID,
		Name:        sess.Name,
		Description: sess.Description,
		Status:      string(sess.Status),
		CreatedAt:   sess.CreatedAt.UnixNano(),
		UpdatedAt:   sess.UpdatedAt.UnixNano(),
		Metadata:    meta,
	})
	return err
}

func (s *MongoStore) UpdateSession(ctx context.Context, sess *api.Session) error {
	meta, err := EncodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"name":        sess.Name,
			"description": sess.Description,
			"status":      string(sess.Status),
			"updated_at":  sess.UpdatedAt.UnixNano(),
			"metadata":    meta,
		},
	}

	res, err := s.sessions.UpdateByID(ctx, sess.ID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return sessionNotFound(sess.ID)
	}
	return nil
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	var doc mongoSessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sessionNotFound(id)
		}
		return nil, err
	}
	return doc.session()
}

func (s *MongoStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	bfilter := bson.M{}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.sessions.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*api.Session{}
	for cur.Next(ctx) {
		var doc mongoSessionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		sess, err := doc.session()
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, cur.Err()
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return sessionNotFound(id)
	}
	return nil
}

func (s *MongoStore) SaveProject(ctx context.Context, p *api.Project) error {
	_, err := s.projects.InsertOne(ctx, mongoProjectDoc{
		Name:        p.Name,
		Description: p.Description,
		SessionID:   p.SessionID,
		CreatedAt:   p.CreatedAt.UnixNano(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return projectExists(p.Name)
	}
	return err
}

func (s *MongoStore) GetProject(ctx context.Context, name string) (*api.Project, error) {
	var doc mongoProjectDoc
	err := s.projects.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, projectNotFound(name)
		}
		return nil, err
	}
	return doc.project(), nil
}

func (s *MongoStore) ListProjects(ctx context.Context) ([]*api.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.projects.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*api.Project{}
	for cur.Next(ctx) {
		var doc mongoProjectDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.project())
	}
	return out, cur.Err()
}
