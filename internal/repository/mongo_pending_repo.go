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

const pendingUsersCollection = "pending_users"

// MongoPendingUserRepo はMongoDBを使用した検証待ち登録レコードのリポジトリ。
// createdAtのTTLインデックス（約15分）により、放置されたレコードは
// アプリケーションの関与なくストア側で自動削除される。
type MongoPendingUserRepo struct {
	coll *mongo.Collection
}

// NewMongoPendingUserRepo はMongoPendingUserRepoを生成する。
func NewMongoPendingUserRepo(db *mongo.Database) *MongoPendingUserRepo {
	return &MongoPendingUserRepo{coll: db.Collection(pendingUsersCollection)}
}

// FindByID は指定IDの検証待ちレコードを取得する。見つからない場合はnilを返す。
func (r *MongoPendingUserRepo) FindByID(ctx context.Context, id string) (*model.PendingUser, error) {
	pending := &model.PendingUser{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(pending)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending user: %w", err)
	}
	return pending, nil
}

// FindByEmail はメールアドレスで検証待ちレコードを検索する。見つからない場合はnilを返す。
func (r *MongoPendingUserRepo) FindByEmail(ctx context.Context, email string) (*model.PendingUser, error) {
	pending := &model.PendingUser{}
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(pending)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending user by email: %w", err)
	}
	return pending, nil
}

// Upsert は検証待ちレコードを作成する。同一メールアドレスの既存レコードは置き換える。
// 削除と挿入の間に同一メールの並行挿入が割り込んだ場合は一意インデックスに
// 弾かれ、ErrDuplicateKeyを返す。
func (r *MongoPendingUserRepo) Upsert(ctx context.Context, pending *model.PendingUser) (string, error) {
	if pending.ID == "" {
		pending.ID = primitive.NewObjectID().Hex()
	}

	if _, err := r.coll.DeleteMany(ctx, bson.M{"email": pending.Email}); err != nil {
		return "", fmt.Errorf("failed to replace pending user: %w", err)
	}

	_, err := r.coll.InsertOne(ctx, pending)
	if mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("failed to create pending user: %w", ErrDuplicateKey)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create pending user: %w", err)
	}
	return pending.ID, nil
}

// UpdateOTP はOTPと有効期限のみを更新する。
func (r *MongoPendingUserRepo) UpdateOTP(ctx context.Context, id, otp string, expiry time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"emailVerificationOTP": otp, "otpExpiry": expiry}},
	)
	if err != nil {
		return fmt.Errorf("failed to update pending user otp: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの検証待ちレコードを削除する。
func (r *MongoPendingUserRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete pending user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PendingUserRepository = (*MongoPendingUserRepo)(nil)
