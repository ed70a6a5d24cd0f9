package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// パスワードハッシュ・OTP・トークン値をメッセージに含めてはならない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeNotificationFailed   = "NOTIFICATION_FAILED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInvalidOTP           = "INVALID_OTP"
	ErrCodeOTPExpired           = "OTP_EXPIRED"
	ErrCodeAlreadyVerified      = "ALREADY_VERIFIED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeRoleMismatch         = "ROLE_MISMATCH"
	ErrCodeVerificationRequired = "VERIFICATION_REQUIRED"
	ErrCodeMissingToken         = "MISSING_TOKEN"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeSessionRevoked       = "SESSION_REVOKED"
	ErrCodeInsufficientRole     = "INSUFFICIENT_ROLE"
	ErrCodeClassifierDisabled   = "CLASSIFIER_DISABLED"
	ErrCodeClassifierFailed     = "CLASSIFIER_FAILED"
)

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に不備があります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewNotificationFailedError は検証コードのメール送信失敗エラーを生成する。
func NewNotificationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotificationFailed,
		Message:  "検証コードのメール送信に失敗しました。登録は完了していません。",
		Category: "system",
		Action:   "しばらく待ってから再度登録してください。",
	}
}

// NewNotFoundError は対象レコード未検出エラーを生成する。
func NewNotFoundError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%sが見つかりません。", what),
		Category: "validation",
		Action:   "指定内容を確認してください。",
	}
}

// NewInvalidOTPError はOTP不一致エラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOTP,
		Message:  "検証コードが正しくありません。",
		Category: "auth",
		Action:   "メールに記載された6桁のコードを確認してください。",
	}
}

// NewOTPExpiredError はOTP期限切れエラーを生成する。
func NewOTPExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPExpired,
		Message:  "検証コードの有効期限が切れています。",
		Category: "auth",
		Action:   "コードの再送信を依頼してください。",
	}
}

// NewAlreadyVerifiedError は検証済みアカウントへの再検証要求エラーを生成する。
func NewAlreadyVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  "このメールアドレスは既に検証済みです。",
		Category: "auth",
		Action:   "そのままログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// アカウント列挙を防ぐため、メール未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewRoleMismatchError は要求ロールと登録ロールの不一致エラーを生成する。
// 管理者ログインへの拒否は専用メッセージで区別する。
func NewRoleMismatchError(requested Role) *APIError {
	msg := fmt.Sprintf("%sとしてのログインは許可されていません。", requested)
	if requested == RoleAdmin {
		msg = "管理者権限が必要です。"
	}
	return &APIError{
		Code:     ErrCodeRoleMismatch,
		Message:  msg,
		Category: "auth",
		Action:   "登録時のロールでログインしてください。",
	}
}

// NewVerificationRequiredError はメール検証未完了エラーを生成する。
func NewVerificationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationRequired,
		Message:  "メールアドレスの検証が完了していません。",
		Category: "auth",
		Action:   "メールに送信された検証コードを入力してください。",
	}
}

// NewMissingTokenError はトークン未指定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "認証トークンが指定されていません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTokenError はトークンの形式・署名不正エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "認証トークンが不正です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewSessionRevokedError はセッション失効エラーを生成する。
// ログアウト済みおよびサーバー側で無効化されたセッションを共通で扱う。
func NewSessionRevokedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionRevoked,
		Message:  "セッションが無効化されています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInsufficientRoleError は権限不足エラーを生成する。
// 対象リソースの存在有無を漏らさない一般的なメッセージを使う。
func NewInsufficientRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientRole,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "必要な権限を持つアカウントでログインしてください。",
	}
}

// NewClassifierDisabledError は分類システム停止中エラーを生成する。
func NewClassifierDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeClassifierDisabled,
		Message:  "分類システムは現在停止中です。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewClassifierFailedError は分類処理失敗エラーを生成する。
func NewClassifierFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeClassifierFailed,
		Message:  "画像の分類処理に失敗しました。",
		Category: "system",
		Action:   "画像形式を確認して再度お試しください。",
	}
}
