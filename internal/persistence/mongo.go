package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediacms/internal/core"
	"mediacms/internal/logger"
)

// MongoStore implements Store on MongoDB
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *slog.Logger
}

// NewMongoStore connects to uri and verifies the connection
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &core.PersistenceError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &core.PersistenceError{Op: "ping", Err: err}
	}

	return &MongoStore{
		client: client,
		db:     client.Database(database),
		log:    logger.Get().With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) findByTenant(ctx context.Context, collection, entity, tenantID, id string, out any) error {
	filter := bson.M{"_id": id, "tenantId": tenantID}
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &core.NotFoundError{Entity: entity, ID: id}
		}
		return &core.PersistenceError{Op: "find " + entity, Err: err}
	}
	return nil
}

func (s *MongoStore) GetTenantCategory(ctx context.Context, tenantID, categoryID string) (*core.Category, error) {
	var c core.Category
	if err := s.findByTenant(ctx, CollectionCategories, "category", tenantID, categoryID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) GetWriter(ctx context.Context, tenantID, writerID string) (*core.Writer, error) {
	var w core.Writer
	if err := s.findByTenant(ctx, CollectionWriters, "writer", tenantID, writerID, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *MongoStore) GetCompositionPattern(ctx context.Context, tenantID, patternID string) (*core.CompositionPattern, error) {
	var p core.CompositionPattern
	if err := s.findByTenant(ctx, CollectionCompositionPatterns, "composition pattern", tenantID, patternID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) GetImagePromptPattern(ctx context.Context, tenantID, patternID string) (*core.ImagePromptPattern, error) {
	var p core.ImagePromptPattern
	if err := s.findByTenant(ctx, CollectionImagePromptPatterns, "image prompt pattern", tenantID, patternID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) GetWritingStyle(ctx context.Context, tenantID, styleID string) (*core.WritingStyle, error) {
	var ws core.WritingStyle
	if err := s.findByTenant(ctx, CollectionWritingStyles, "writing style", tenantID, styleID, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *MongoStore) ListPublishedTitles(ctx context.Context, tenantID string) ([]string, error) {
	filter := bson.M{"tenantId": tenantID, "isPublished": true}
	opts := options.Find().
		SetProjection(bson.M{"title": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := s.db.Collection(CollectionArticles).Find(ctx, filter, opts)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list published titles", Err: err}
	}
	defer func() { _ = cursor.Close(ctx) }()

	var rows []struct {
		Title string `bson:"title"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, &core.PersistenceError{Op: "list published titles", Err: err}
	}

	titles := make([]string, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, r.Title)
	}
	return titles, nil
}

func (s *MongoStore) CreateArticle(ctx context.Context, article *core.GeneratedArticle) (string, error) {
	if article.ID == "" {
		article.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	article.CreatedAt = now
	article.UpdatedAt = now
	article.ViewCount = 0

	if _, err := s.db.Collection(CollectionArticles).InsertOne(ctx, article); err != nil {
		return "", &core.PersistenceError{Op: "create article", Err: err}
	}
	return article.ID, nil
}

func (s *MongoStore) GetArticle(ctx context.Context, id string) (*core.GeneratedArticle, error) {
	var a core.GeneratedArticle
	err := s.db.Collection(CollectionArticles).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &core.NotFoundError{Entity: "article", ID: id}
		}
		return nil, &core.PersistenceError{Op: "find article", Err: err}
	}
	return &a, nil
}

func (s *MongoStore) ListActiveSchedules(ctx context.Context) ([]core.ScheduledGeneration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(CollectionSchedules).Find(ctx, bson.M{"isActive": true}, opts)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list schedules", Err: err}
	}
	defer func() { _ = cursor.Close(ctx) }()

	var schedules []core.ScheduledGeneration
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, &core.PersistenceError{Op: "list schedules", Err: err}
	}
	return schedules, nil
}

func (s *MongoStore) MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error {
	res, err := s.db.Collection(CollectionSchedules).UpdateOne(ctx,
		bson.M{"_id": scheduleID},
		bson.M{"$set": bson.M{"lastExecutedAt": at.UTC()}},
	)
	if err != nil {
		return &core.PersistenceError{Op: "mark schedule executed", Err: err}
	}
	if res.MatchedCount == 0 {
		return &core.NotFoundError{Entity: "schedule", ID: scheduleID}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return &core.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type indexSpec struct {
	collection string
	name       string
	keys       bson.D
}

var indexSpecs = []indexSpec{
	{CollectionArticles, "article_tenant_published", bson.D{{Key: "tenantId", Value: 1}, {Key: "isPublished", Value: 1}, {Key: "createdAt", Value: -1}}},
	{CollectionArticles, "article_tenant_slug", bson.D{{Key: "tenantId", Value: 1}, {Key: "slug", Value: 1}}},
	{CollectionSchedules, "schedule_active", bson.D{{Key: "isActive", Value: 1}}},
	{CollectionCategories, "category_tenant", bson.D{{Key: "tenantId", Value: 1}}},
	{CollectionWriters, "writer_tenant", bson.D{{Key: "tenantId", Value: 1}}},
	{CollectionCompositionPatterns, "composition_pattern_tenant", bson.D{{Key: "tenantId", Value: 1}}},
	{CollectionImagePromptPatterns, "image_prompt_pattern_tenant", bson.D{{Key: "tenantId", Value: 1}}},
	{CollectionWritingStyles, "writing_style_tenant", bson.D{{Key: "tenantId", Value: 1}}},
}

// EnsureIndexes creates the indexes the pipeline and trigger queries rely on.
// It is safe to run repeatedly.
func (s *MongoStore) EnsureIndexes(ctx context.Context) (int, error) {
	created := 0
	for _, spec := range indexSpecs {
		_, err := s.db.Collection(spec.collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.keys,
			Options: options.Index().SetName(spec.name),
		})
		if err != nil && !isIndexExistsError(err) {
			return created, &core.PersistenceError{Op: fmt.Sprintf("create index %s", spec.name), Err: err}
		}
		s.log.Info("Index ensured", "collection", spec.collection, "index", spec.name)
		created++
	}
	return created, nil
}

// IndexNames lists the managed index names
func IndexNames() []string {
	names := make([]string, len(indexSpecs))
	for i, spec := range indexSpecs {
		names[i] = spec.name
	}
	return names
}

func isIndexExistsError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// IndexOptionsConflict, IndexKeySpecsConflict
		return cmdErr.Code == 85 || cmdErr.Code == 86
	}
	return false
}
