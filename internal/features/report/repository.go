package report

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go-reports/internal/common/errs"
	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReportRepository interface {
	Create(ctx context.Context, report *Report) error
	// FindVisible returns errs.ErrNotFound unless the report belongs to org and
	// is owned by userID or shared.
	FindVisible(ctx context.Context, id primitive.ObjectID, org, userID string) (*Report, error)
	List(ctx context.Context, org, userID string, filter ListFilter, onlyIDs []primitive.ObjectID) ([]Report, error)
	Update(ctx context.Context, report *Report) error
	SetSharing(ctx context.Context, id primitive.ObjectID, org string, isShared bool, at time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID, org string) error
	EnsureIndexes(ctx context.Context) error
}

type ReportRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewReportRepository(db *database.MongodbDB) ReportRepository {
	return &ReportRepositoryImpl{
		Collection: db.DB.Collection("report_definitions"),
	}
}

func visibleTo(org, userID string) bson.M {
	return bson.M{
		"organization_id": org,
		"$or": bson.A{
			bson.M{"owner_user_id": userID},
			bson.M{"is_shared": true},
		},
	}
}

func (r *ReportRepositoryImpl) Create(ctx context.Context, report *Report) error {
	_, err := r.Collection.InsertOne(ctx, report)
	return err
}

func (r *ReportRepositoryImpl) FindVisible(ctx context.Context, id primitive.ObjectID, org, userID string) (*Report, error) {
	filter := visibleTo(org, userID)
	filter["_id"] = id

	var report Report
	err := r.Collection.FindOne(ctx, filter).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepositoryImpl) List(ctx context.Context, org, userID string, filter ListFilter, onlyIDs []primitive.ObjectID) ([]Report, error) {
	query := visibleTo(org, userID)
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.SharedOnly {
		delete(query, "$or")
		query["is_shared"] = true
	}
	if filter.Search != "" {
		query["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
	}
	if onlyIDs != nil {
		query["_id"] = bson.M{"$in": onlyIDs}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := []Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Update writes the definition, Version and UpdatedAt exactly as given.
func (r *ReportRepositoryImpl) Update(ctx context.Context, report *Report) error {
	update := bson.M{
		"$set": bson.M{
			"name":                report.Name,
			"description":         report.Description,
			"category":            report.Category,
			"data_sources":        report.DataSources,
			"columns_config":      report.Columns,
			"filters_config":      report.Filters,
			"aggregations_config": report.Aggregations,
			"sort_config":         report.Sort,
			"filterable_fields":   report.FilterableFields,
			"version":             report.Version,
			"updated_at":          report.UpdatedAt,
		},
	}
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": report.ID, "organization_id": report.OrganizationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ReportRepositoryImpl) SetSharing(ctx context.Context, id primitive.ObjectID, org string, isShared bool, at time.Time) error {
	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "organization_id": org},
		bson.M{"$set": bson.M{"is_shared": isShared, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ReportRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID, org string) error {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id, "organization_id": org})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ReportRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "owner_user_id", Value: 1},
			},
			Options: options.Index().SetName("idx_org_owner"),
		},
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "is_shared", Value: 1},
			},
			Options: options.Index().SetName("idx_org_shared"),
		},
	}

	_, err := r.Collection.Indexes().CreateMany(ctx, indexes)
	return err
}
