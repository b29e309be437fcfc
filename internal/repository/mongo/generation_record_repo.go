package mongo

import (
	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const generationRecordCollectionName = "generation_records"

// mongoGenerationRecordRepository implements repository.GenerationRecordRepository.
type mongoGenerationRecordRepository struct {
	collection *mongo.Collection
}

// NewMongoGenerationRecordRepository creates a new GenerationRecord repository.
func NewMongoGenerationRecordRepository(db *mongo.Database) repository.GenerationRecordRepository {
	return &mongoGenerationRecordRepository{
		collection: db.Collection(generationRecordCollectionName),
	}
}

// Create inserts a new generation record.
func (r *mongoGenerationRecordRepository) Create(ctx context.Context, record *domain.GenerationRecord) (primitive.ObjectID, error) {
	if record.OwnerID == primitive.NilObjectID || !record.PlanKind.IsValid() {
		return primitive.NilObjectID, errors.New("record requires ownerId and a valid planKind")
	}
	record.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.SchemaVersion = domain.GenerationRecordSchemaVersion

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted record ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single record by its ID. Records persisted under an
// older schema version are normalized on the way out.
func (r *mongoGenerationRecordRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GenerationRecord, error) {
	var record domain.GenerationRecord
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	record.ApplyDefaults()
	return &record, nil
}

// Update replaces the stored record wholesale. Whole-document replacement
// keyed by id keeps interrupted updates safe to re-run.
func (r *mongoGenerationRecordRepository) Update(ctx context.Context, record *domain.GenerationRecord) error {
	if record.ID == primitive.NilObjectID {
		return errors.New("record ID is required for update")
	}
	record.UpdatedAt = time.Now().UTC()
	record.SchemaVersion = domain.GenerationRecordSchemaVersion

	filter := bson.M{"_id": record.ID}
	result, err := r.collection.ReplaceOne(ctx, filter, record)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByOwnerAndPhase retrieves all of an owner's records in a given phase,
// oldest first so recovery processes them in creation order.
func (r *mongoGenerationRecordRepository) GetByOwnerAndPhase(ctx context.Context, ownerID primitive.ObjectID, phase domain.GenerationPhase) ([]domain.GenerationRecord, error) {
	var records []domain.GenerationRecord
	filter := bson.M{
		"ownerId": ownerID,
		"phase":   phase,
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	for i := range records {
		records[i].ApplyDefaults()
	}
	return records, nil
}

// GetActiveByOwnerAndKind retrieves the owner's non-terminal record for a
// plan kind, if any.
func (r *mongoGenerationRecordRepository) GetActiveByOwnerAndKind(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind) (*domain.GenerationRecord, error) {
	var record domain.GenerationRecord
	filter := bson.M{
		"ownerId":  ownerID,
		"planKind": kind,
		"phase":    bson.M{"$in": []domain.GenerationPhase{domain.PhaseConversation, domain.PhaseGenerating}},
	}
	findOptions := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	record.ApplyDefaults()
	return &record, nil
}

// Archive marks a record archived. Only the archive flag, timestamp and
// updatedAt change; conversation history is retained.
func (r *mongoGenerationRecordRepository) Archive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	filter := bson.M{"_id": id}
	update := bson.M{
		"$set": bson.M{
			"isArchived": true,
			"archivedAt": at,
			"updatedAt":  time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureGenerationRecordIndexes creates necessary indexes. Call during startup.
func EnsureGenerationRecordIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Main recovery query: an owner's records in a given phase.
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "phase", Value: 1}},
			Options: options.Index(),
		},
		{
			// Active-flow lookup per owner and kind.
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "planKind", Value: 1}, {Key: "phase", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
