package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hitoshi/neuroscan/internal/model"
)

const sessionsCollection = "sessions"

// MongoSessionRepo はMongoDBを使用したセッションリポジトリ。
type MongoSessionRepo struct {
	coll *mongo.Collection
}

// NewMongoSessionRepo はMongoSessionRepoを生成する。
func NewMongoSessionRepo(db *mongo.Database) *MongoSessionRepo {
	return &MongoSessionRepo{coll: db.Collection(sessionsCollection)}
}

// Create はセッションを作成する。
func (r *MongoSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		session.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.coll.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindValidByToken はトークンに一致する有効なセッションを取得する。見つからない場合はnilを返す。
func (r *MongoSessionRepo) FindValidByToken(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	err := r.coll.FindOne(ctx, bson.M{"token": token, "isValid": true}).Decode(session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// InvalidateByToken はトークンに一致するセッションを無効化する。
// 一致するセッションがなくてもエラーにしない（冪等）。
func (r *MongoSessionRepo) InvalidateByToken(ctx context.Context, token string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"isValid": false}},
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// UpdateLastActive はセッションの最終アクティブ時刻を更新する。
func (r *MongoSessionRepo) UpdateLastActive(ctx context.Context, token string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"lastActive": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update session last active: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *MongoSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*MongoSessionRepo)(nil)
