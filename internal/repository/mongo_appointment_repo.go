package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/neuroscan/internal/model"
)

const appointmentsCollection = "appointments"

// MongoAppointmentRepo はMongoDBを使用した予約リポジトリ。
type MongoAppointmentRepo struct {
	coll *mongo.Collection
}

// NewMongoAppointmentRepo はMongoAppointmentRepoを生成する。
func NewMongoAppointmentRepo(db *mongo.Database) *MongoAppointmentRepo {
	return &MongoAppointmentRepo{coll: db.Collection(appointmentsCollection)}
}

// Create は予約を作成する。
func (r *MongoAppointmentRepo) Create(ctx context.Context, appointment *model.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.coll.InsertOne(ctx, appointment)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// FindByIDAndDoctor はIDと担当医IDの両方に一致する予約を取得する。見つからない場合はnilを返す。
func (r *MongoAppointmentRepo) FindByIDAndDoctor(ctx context.Context, id, doctorID string) (*model.Appointment, error) {
	appointment := &model.Appointment{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "doctor": doctorID}).Decode(appointment)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}
	return appointment, nil
}

// Update は予約を更新する。
func (r *MongoAppointmentRepo) Update(ctx context.Context, appointment *model.Appointment) error {
	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": appointment.ID}, appointment)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("appointment not found: %s", appointment.ID)
	}
	return nil
}

// ListByDoctor は担当医の予約をフィルタ条件付きで日時の昇順に取得する。
func (r *MongoAppointmentRepo) ListByDoctor(ctx context.Context, doctorID string, filter AppointmentFilter) ([]*model.Appointment, error) {
	return r.list(ctx, bson.M{"doctor": doctorID}, filter)
}

// ListByPatient は患者の予約をフィルタ条件付きで日時の昇順に取得する。
func (r *MongoAppointmentRepo) ListByPatient(ctx context.Context, patientID string, filter AppointmentFilter) ([]*model.Appointment, error) {
	return r.list(ctx, bson.M{"patient": patientID}, filter)
}

func (r *MongoAppointmentRepo) list(ctx context.Context, query bson.M, filter AppointmentFilter) ([]*model.Appointment, error) {
	if filter.From != nil || filter.To != nil {
		dateRange := bson.M{}
		if filter.From != nil {
			dateRange["$gte"] = *filter.From
		}
		if filter.To != nil {
			dateRange["$lte"] = *filter.To
		}
		query["date"] = dateRange
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err := cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

// compile-time interface check
var _ AppointmentRepository = (*MongoAppointmentRepo)(nil)
