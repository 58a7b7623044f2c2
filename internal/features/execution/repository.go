package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-reports/internal/common/errs"
	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidTransition is returned when a status guard does not match, for
// example when finishing an execution that is already terminal.
var ErrInvalidTransition = errors.New("invalid execution status transition")

type ExecutionRepository interface {
	Create(ctx context.Context, e *Execution) error
	MarkRunning(ctx context.Context, id primitive.ObjectID, startedAt time.Time) error
	// Finish moves a running execution to its terminal state. An execution
	// that never started may only fail.
	Finish(ctx context.Context, e *Execution) error
	FindByID(ctx context.Context, id primitive.ObjectID, org string) (*Execution, error)
	ListByReport(ctx context.Context, reportID, org string, limit int64) ([]Execution, error)
	ListBySchedule(ctx context.Context, scheduleID, org string, limit int64) ([]Execution, error)
	DeleteByReport(ctx context.Context, reportID, org string) error
	EnsureIndexes(ctx context.Context) error
}

type ExecutionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewExecutionRepository(db *database.MongodbDB) ExecutionRepository {
	return &ExecutionRepositoryImpl{
		Collection: db.DB.Collection("report_executions"),
	}
}

func (r *ExecutionRepositoryImpl) Create(ctx context.Context, e *Execution) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	_, err := r.Collection.InsertOne(ctx, e)
	return err
}

func (r *ExecutionRepositoryImpl) MarkRunning(ctx context.Context, id primitive.ObjectID, startedAt time.Time) error {
	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{"status": StatusRunning, "started_at": startedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *ExecutionRepositoryImpl) Finish(ctx context.Context, e *Execution) error {
	if !e.Status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, e.Status)
	}
	var from any = StatusRunning
	if e.Status == StatusFailed {
		from = bson.M{"$in": bson.A{StatusPending, StatusRunning}}
	}
	res, err := r.Collection.UpdateOne(ctx,
		bson.M{"_id": e.ID, "status": from},
		bson.M{"$set": bson.M{
			"status":              e.Status,
			"completed_at":        e.CompletedAt,
			"duration_ms":         e.DurationMs,
			"row_count":           e.RowCount,
			"error_message":       e.ErrorMessage,
			"error_kind":          e.ErrorKind,
			"retryable":           e.Retryable,
			"result_artifact_ref": e.ResultArtifactRef,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *ExecutionRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID, org string) (*Execution, error) {
	var e Execution
	err := r.Collection.FindOne(ctx, bson.M{"_id": id, "organization_id": org}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionRepositoryImpl) ListByReport(ctx context.Context, reportID, org string, limit int64) ([]Execution, error) {
	return r.list(ctx, bson.M{"report_id": reportID, "organization_id": org}, limit)
}

func (r *ExecutionRepositoryImpl) ListBySchedule(ctx context.Context, scheduleID, org string, limit int64) ([]Execution, error) {
	return r.list(ctx, bson.M{"schedule_id": scheduleID, "organization_id": org}, limit)
}

func (r *ExecutionRepositoryImpl) list(ctx context.Context, filter bson.M, limit int64) ([]Execution, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	executions := []Execution{}
	if err := cursor.All(ctx, &executions); err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *ExecutionRepositoryImpl) DeleteByReport(ctx context.Context, reportID, org string) error {
	_, err := r.Collection.DeleteMany(ctx, bson.M{"report_id": reportID, "organization_id": org})
	return err
}

func (r *ExecutionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "report_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_org_report_created"),
		},
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "schedule_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_org_schedule_created").SetSparse(true),
		},
	}

	_, err := r.Collection.Indexes().CreateMany(ctx, indexes)
	return err
}
