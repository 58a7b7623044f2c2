package report

import (
	"context"
	"time"

	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FavoriteRepository stores per-user favorite marks, one row per (user, report).
type FavoriteRepository interface {
	Toggle(ctx context.Context, userID string, reportID primitive.ObjectID, org string, at time.Time) (bool, error)
	IsFavorite(ctx context.Context, userID string, reportID primitive.ObjectID) (bool, error)
	ListReportIDs(ctx context.Context, userID, org string) ([]primitive.ObjectID, error)
	DeleteByReport(ctx context.Context, reportID primitive.ObjectID) error
	EnsureIndexes(ctx context.Context) error
}

type FavoriteRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewFavoriteRepository(db *database.MongodbDB) FavoriteRepository {
	return &FavoriteRepositoryImpl{
		Collection: db.DB.Collection("report_favorites"),
	}
}

// Toggle flips the mark and returns the new state.
func (r *FavoriteRepositoryImpl) Toggle(ctx context.Context, userID string, reportID primitive.ObjectID, org string, at time.Time) (bool, error) {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"user_id": userID, "report_id": reportID})
	if err != nil {
		return false, err
	}
	if res.DeletedCount > 0 {
		return false, nil
	}

	_, err = r.Collection.InsertOne(ctx, Favorite{
		UserID:         userID,
		ReportID:       reportID,
		OrganizationID: org,
		CreatedAt:      at,
	})
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent toggle already inserted it
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *FavoriteRepositoryImpl) IsFavorite(ctx context.Context, userID string, reportID primitive.ObjectID) (bool, error) {
	n, err := r.Collection.CountDocuments(ctx, bson.M{"user_id": userID, "report_id": reportID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *FavoriteRepositoryImpl) ListReportIDs(ctx context.Context, userID, org string) ([]primitive.ObjectID, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"user_id": userID, "organization_id": org})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var favorites []Favorite
	if err := cursor.All(ctx, &favorites); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(favorites))
	for _, f := range favorites {
		ids = append(ids, f.ReportID)
	}
	return ids, nil
}

func (r *FavoriteRepositoryImpl) DeleteByReport(ctx context.Context, reportID primitive.ObjectID) error {
	_, err := r.Collection.DeleteMany(ctx, bson.M{"report_id": reportID})
	return err
}

func (r *FavoriteRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "report_id", Value: 1},
		},
		Options: options.Index().SetName("uniq_user_report").SetUnique(true),
	})
	return err
}
