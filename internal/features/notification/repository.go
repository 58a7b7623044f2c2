package notification

import (
	"context"
	"time"

	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DeliveryRepository interface {
	Create(ctx context.Context, d *Delivery) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status DeliveryStatus, errorMsg string, at time.Time) error
	ListBySchedule(ctx context.Context, org, scheduleID string, limit int64) ([]Delivery, error)
}

type DeliveryRepositoryImpl struct {
	col *mongo.Collection
}

func NewDeliveryRepository(db *database.MongodbDB) DeliveryRepository {
	return &DeliveryRepositoryImpl{
		col: db.DB.Collection("report_deliveries"),
	}
}

func (r *DeliveryRepositoryImpl) Create(ctx context.Context, d *Delivery) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, d)
	return err
}

func (r *DeliveryRepositoryImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, status DeliveryStatus, errorMsg string, at time.Time) error {
	set := bson.M{
		"status":        status,
		"error_message": errorMsg,
	}
	if status == DeliverySent {
		set["sent_at"] = at
	}
	_, err := r.col.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

func (r *DeliveryRepositoryImpl) ListBySchedule(ctx context.Context, org, scheduleID string, limit int64) ([]Delivery, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.col.Find(ctx, bson.M{"organization_id": org, "schedule_id": scheduleID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	deliveries := []Delivery{}
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, err
	}
	return deliveries, nil
}
