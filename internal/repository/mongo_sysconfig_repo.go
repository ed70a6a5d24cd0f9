package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/neuroscan/internal/model"
)

const systemConfigCollection = "system_configs"

// MongoSystemConfigRepo はMongoDBを使用したシステム設定リポジトリ。
type MongoSystemConfigRepo struct {
	coll *mongo.Collection
}

// NewMongoSystemConfigRepo はMongoSystemConfigRepoを生成する。
func NewMongoSystemConfigRepo(db *mongo.Database) *MongoSystemConfigRepo {
	return &MongoSystemConfigRepo{coll: db.Collection(systemConfigCollection)}
}

// Get はキーに一致する設定を取得する。見つからない場合はnilを返す。
func (r *MongoSystemConfigRepo) Get(ctx context.Context, key string) (*model.SystemConfig, error) {
	config := &model.SystemConfig{}
	err := r.coll.FindOne(ctx, bson.M{"_id": key}).Decode(config)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find system config: %w", err)
	}
	return config, nil
}

// Upsert は設定を保存する。既存のキーがあれば置き換える。
func (r *MongoSystemConfigRepo) Upsert(ctx context.Context, config *model.SystemConfig) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": config.Key}, config, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert system config: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SystemConfigRepository = (*MongoSystemConfigRepo)(nil)
