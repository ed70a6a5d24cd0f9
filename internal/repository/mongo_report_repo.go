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

const reportsCollection = "reports"

// MongoReportRepo はMongoDBを使用した診断レポートリポジトリ。
type MongoReportRepo struct {
	coll *mongo.Collection
}

// NewMongoReportRepo はMongoReportRepoを生成する。
func NewMongoReportRepo(db *mongo.Database) *MongoReportRepo {
	return &MongoReportRepo{coll: db.Collection(reportsCollection)}
}

// Create はレポートを作成する。
func (r *MongoReportRepo) Create(ctx context.Context, report *model.Report) error {
	if report.ID == "" {
		report.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.coll.InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// FindByID はIDでレポートを取得する。見つからない場合はnilを返す。
func (r *MongoReportRepo) FindByID(ctx context.Context, id string) (*model.Report, error) {
	report := &model.Report{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(report)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return report, nil
}

// Update はレポートを更新する。
func (r *MongoReportRepo) Update(ctx context.Context, report *model.Report) error {
	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": report.ID}, report)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("report not found: %s", report.ID)
	}
	return nil
}

// ListByPatient は患者のレポートを作成日時の降順で取得する。
func (r *MongoReportRepo) ListByPatient(ctx context.Context, patientID string) ([]*model.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"patient": patientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*model.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return reports, nil
}

// LatestByPatients は各患者の最新レポートを患者IDをキーとするマップで返す。
// 一覧表示向けのため画像データは除外する。
func (r *MongoReportRepo) LatestByPatients(ctx context.Context, patientIDs []string) (map[string]*model.Report, error) {
	if len(patientIDs) == 0 {
		return map[string]*model.Report{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"patient": bson.M{"$in": patientIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$patient",
			"report": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$project", Value: bson.M{"report.image": 0}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate latest reports: %w", err)
	}
	defer cursor.Close(ctx)

	type latestRow struct {
		PatientID string       `bson:"_id"`
		Report    model.Report `bson:"report"`
	}

	latest := make(map[string]*model.Report)
	for cursor.Next(ctx) {
		var row latestRow
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode latest report: %w", err)
		}
		report := row.Report
		latest[row.PatientID] = &report
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latest reports: %w", err)
	}
	return latest, nil
}

// compile-time interface check
var _ ReportRepository = (*MongoReportRepo)(nil)
