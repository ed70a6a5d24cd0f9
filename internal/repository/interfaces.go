// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/neuroscan/internal/model"
)

// ErrDuplicateKey はストアの一意制約違反を表す。
// users.emailおよびpatientInfo.serialの一意インデックスに違反した場合に返る。
// 呼び出し側はこれをerrors.Isで判定し、昇格の二重実行などを検出する。
var ErrDuplicateKey = errors.New("duplicate key")

// UserRepository は恒久アカウント（Identity）の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は小文字正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。email重複時はErrDuplicateKeyを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザードキュメント全体を置き換える。
	Update(ctx context.Context, user *model.User) error

	// UpdateLastActive は最終アクティブ時刻のみを更新する。
	UpdateLastActive(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。見つからない場合はnilを返す。
	// 削除されたかどうかはboolで返す。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// ListByRole は指定ロールのユーザー一覧をsortFieldの昇順で返す。
	ListByRole(ctx context.Context, role model.Role, sortField string) ([]*model.User, error)

	// ListByAssignedDoctor は指定医師に割り当てられた患者一覧を返す。
	ListByAssignedDoctor(ctx context.Context, doctorID string) ([]*model.User, error)
}

// PendingUserRepository は検証待ち登録レコードの永続化インターフェース。
// レコードの期限切れ削除はストアのTTLインデックスに任せる。
type PendingUserRepository interface {
	// FindByID は指定IDの検証待ちレコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PendingUser, error)

	// FindByEmail はメールアドレスで検証待ちレコードを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.PendingUser, error)

	// Upsert は検証待ちレコードを作成する。同一メールアドレスの既存レコードは置き換える。
	// 挿入・置換後のレコードIDを返す。
	Upsert(ctx context.Context, pending *model.PendingUser) (string, error)

	// UpdateOTP はOTPと有効期限のみを更新する。
	UpdateOTP(ctx context.Context, id, otp string, expiry time.Time) error

	// DeleteByID は指定IDの検証待ちレコードを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindValidByToken はトークンに一致する有効（isValid=true）なセッションを取得する。
	// 見つからない場合はnilを返す。
	FindValidByToken(ctx context.Context, token string) (*model.Session, error)

	// InvalidateByToken はトークンに一致するセッションを無効化する。一方向の遷移で、
	// 一致するセッションがなくてもエラーにしない。
	InvalidateByToken(ctx context.Context, token string) error

	// UpdateLastActive はセッションの最終アクティブ時刻を更新する。
	UpdateLastActive(ctx context.Context, token string, at time.Time) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。アカウント削除時に使用する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ReportRepository はMRI分類レポートの永続化インターフェース。
type ReportRepository interface {
	// Create はレポートを作成する。
	Create(ctx context.Context, report *model.Report) error

	// FindByID は指定IDのレポートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Report, error)

	// Update はレポートドキュメント全体を置き換える。
	Update(ctx context.Context, report *model.Report) error

	// ListByPatient は指定患者のレポート一覧を作成日時の降順で返す。
	// 画像データは含めない。
	ListByPatient(ctx context.Context, patientID string) ([]*model.Report, error)

	// LatestByPatients は患者IDごとの最新レポートを返す。画像データは含めない。
	// レポートが存在しない患者はマップに含まれない。
	LatestByPatients(ctx context.Context, patientIDs []string) (map[string]*model.Report, error)
}

// AppointmentFilter は予約一覧の絞り込み条件。
type AppointmentFilter struct {
	// From/To は日付範囲。nilの側は制限しない。
	From *time.Time
	To   *time.Time
	// Statuses が空でない場合は指定状態のみに絞る。
	Statuses []model.AppointmentStatus
}

// AppointmentRepository は診察予約の永続化インターフェース。
type AppointmentRepository interface {
	// Create は予約を作成する。
	Create(ctx context.Context, appointment *model.Appointment) error

	// FindByIDAndDoctor は予約IDと医師IDの両方に一致する予約を取得する。
	// 見つからない場合はnilを返す。
	FindByIDAndDoctor(ctx context.Context, id, doctorID string) (*model.Appointment, error)

	// Update は予約ドキュメント全体を置き換える。
	Update(ctx context.Context, appointment *model.Appointment) error

	// ListByDoctor は指定医師の予約一覧を日付の昇順で返す。
	ListByDoctor(ctx context.Context, doctorID string, filter AppointmentFilter) ([]*model.Appointment, error)

	// ListByPatient は指定患者の予約一覧を日付の昇順で返す。
	ListByPatient(ctx context.Context, patientID string, filter AppointmentFilter) ([]*model.Appointment, error)
}

// SystemConfigRepository はシステム全体のトグル設定の永続化インターフェース。
type SystemConfigRepository interface {
	// Get は指定キーの設定を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, key string) (*model.SystemConfig, error)

	// Upsert は設定を作成または更新する。
	Upsert(ctx context.Context, cfg *model.SystemConfig) error
}
