package schedule

import (
	"context"
	"errors"
	"time"

	"go-reports/internal/common/errs"
	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrLeaseLost is returned by Renew when another instance owns the lease.
var ErrLeaseLost = errors.New("schedule lease lost")

type ScheduleRepository interface {
	Create(ctx context.Context, s *Schedule) error
	FindByID(ctx context.Context, id primitive.ObjectID, org string) (*Schedule, error)
	List(ctx context.Context, org, ownerUserID, reportID string) ([]Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	SetActive(ctx context.Context, id primitive.ObjectID, org string, active bool, nextRunAt *time.Time, at time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID, org string) error
	DeleteByReport(ctx context.Context, reportID, org string) error

	// FindDue lists active schedules with nextRunAt <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int64) ([]Schedule, error)
	// Claim takes the lease for the slot due at dueAt when the lease is free
	// or expired. It reports false, without error, when another holder has
	// it or the slot has already been run.
	Claim(ctx context.Context, id primitive.ObjectID, owner string, dueAt, now, until time.Time) (bool, error)
	Renew(ctx context.Context, id primitive.ObjectID, owner string, until time.Time) error
	Release(ctx context.Context, id primitive.ObjectID, owner string) error
	RecordRun(ctx context.Context, id primitive.ObjectID, rec RunRecord) error

	EnsureIndexes(ctx context.Context) error
}

type ScheduleRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewScheduleRepository(db *database.MongodbDB) ScheduleRepository {
	return &ScheduleRepositoryImpl{
		Collection: db.DB.Collection("report_schedules"),
	}
}

func (r *ScheduleRepositoryImpl) Create(ctx context.Context, s *Schedule) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	_, err := r.Collection.InsertOne(ctx, s)
	return err
}

func (r *ScheduleRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID, org string) (*Schedule, error) {
	var s Schedule
	err := r.Collection.FindOne(ctx, bson.M{"_id": id, "organization_id": org}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScheduleRepositoryImpl) List(ctx context.Context, org, ownerUserID, reportID string) ([]Schedule, error) {
	filter := bson.M{"organization_id": org, "owner_user_id": ownerUserID}
	if reportID != "" {
		filter["report_id"] = reportID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *ScheduleRepositoryImpl) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Schedule, error) {
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	schedules := []Schedule{}
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *ScheduleRepositoryImpl) Update(ctx context.Context, s *Schedule) error {
	update := bson.M{
		"$set": bson.M{
			"name":             s.Name,
			"schedule_type":    s.ScheduleType,
			"schedule_config":  s.ScheduleConfig,
			"filters_preset":   s.FiltersPreset,
			"recipient_emails": s.RecipientEmails,
			"export_format":    s.ExportFormat,
			"is_active":        s.IsActive,
			"next_run_at":      s.NextRunAt,
			"updated_at":       s.UpdatedAt,
		},
	}
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": s.ID, "organization_id": s.OrganizationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepositoryImpl) SetActive(ctx context.Context, id primitive.ObjectID, org string, active bool, nextRunAt *time.Time, at time.Time) error {
	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "organization_id": org},
		bson.M{"$set": bson.M{"is_active": active, "next_run_at": nextRunAt, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID, org string) error {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id, "organization_id": org})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepositoryImpl) DeleteByReport(ctx context.Context, reportID, org string) error {
	_, err := r.Collection.DeleteMany(ctx, bson.M{"report_id": reportID, "organization_id": org})
	return err
}

func (r *ScheduleRepositoryImpl) FindDue(ctx context.Context, now time.Time, limit int64) ([]Schedule, error) {
	filter := bson.M{
		"is_active":   true,
		"next_run_at": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "next_run_at", Value: 1}}).SetLimit(limit)
	return r.find(ctx, filter, opts)
}

func (r *ScheduleRepositoryImpl) Claim(ctx context.Context, id primitive.ObjectID, owner string, dueAt, now, until time.Time) (bool, error) {
	filter := bson.M{
		"_id":         id,
		"is_active":   true,
		"next_run_at": dueAt,
		"$or": bson.A{
			bson.M{"claimed_until": nil},
			bson.M{"claimed_until": bson.M{"$lte": now}},
		},
	}
	res, err := r.Collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"claimed_by": owner, "claimed_until": until}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *ScheduleRepositoryImpl) Renew(ctx context.Context, id primitive.ObjectID, owner string, until time.Time) error {
	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "claimed_by": owner},
		bson.M{"$set": bson.M{"claimed_until": until}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *ScheduleRepositoryImpl) Release(ctx context.Context, id primitive.ObjectID, owner string) error {
	_, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "claimed_by": owner},
		bson.M{"$unset": bson.M{"claimed_by": "", "claimed_until": ""}},
	)
	return err
}

func (r *ScheduleRepositoryImpl) RecordRun(ctx context.Context, id primitive.ObjectID, rec RunRecord) error {
	set := bson.M{
		"last_run_at":         rec.RunAt,
		"last_status":         rec.Status,
		"last_delivery_error": rec.DeliveryError,
	}
	if rec.ExecutionID != "" {
		set["last_execution_id"] = rec.ExecutionID
	}
	if _, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return err
	}
	if rec.NextRunAt == nil {
		return nil
	}

	filter := bson.M{"_id": id, "is_active": true, "updated_at": rec.SeenUpdatedAt}
	if rec.Slot != nil {
		filter["next_run_at"] = *rec.Slot
	}
	_, err := r.Collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"next_run_at": rec.NextRunAt}})
	return err
}

func (r *ScheduleRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "is_active", Value: 1},
				{Key: "next_run_at", Value: 1},
			},
			Options: options.Index().SetName("idx_active_next_run"),
		},
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "owner_user_id", Value: 1},
				{Key: "report_id", Value: 1},
			},
			Options: options.Index().SetName("idx_org_owner_report"),
		},
	}

	_, err := r.Collection.Indexes().CreateMany(ctx, indexes)
	return err
}
