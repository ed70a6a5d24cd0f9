// Package auth はサインアップ、メール検証、ログイン、セッション管理の
// 認証ライフサイクルを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/neuroscan/internal/mailer"
	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
	"github.com/hitoshi/neuroscan/internal/security"
	"github.com/hitoshi/neuroscan/internal/token"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// OTPTTL は確認コードの有効期間。
	OTPTTL time.Duration
}

// Service は認証ライフサイクルのビジネスロジックを提供する。
// 検証待ちレコード（PendingUser）と恒久アカウント（User）は同一メールアドレスに
// 対して同時に有効にならない。昇格はUser作成を先に行い、その後PendingUserを削除する。
type Service struct {
	userRepo    repository.UserRepository
	pendingRepo repository.PendingUserRepository
	sessionRepo repository.SessionRepository
	hasher      *security.PasswordHasher
	sanitizer   *security.Sanitizer
	tokens      *token.Manager
	mail        mailer.Mailer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	pendingRepo repository.PendingUserRepository,
	sessionRepo repository.SessionRepository,
	hasher *security.PasswordHasher,
	sanitizer *security.Sanitizer,
	tokens *token.Manager,
	mail mailer.Mailer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		pendingRepo: pendingRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		tokens:      tokens,
		mail:        mail,
		config:      config,
	}
}

// SignupInput はサインアップの入力。
type SignupInput struct {
	Email    string
	Password string
	Name     string
	Role     string

	// 患者ロールの場合に使用する。DateOfBirthは必須。
	DateOfBirth    time.Time
	Gender         string
	MedicalHistory []string
}

// SignupResult はサインアップの結果。確認コードやパスワードハッシュは含めない。
type SignupResult struct {
	PendingID   string `json:"pendingId"`
	MaskedEmail string `json:"maskedEmail"`
}

// AuthResult はログインまたはメール検証成功の結果。
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// Signup は検証待ちレコードを作成し確認コードをメールで送信する。
// メール送信に失敗した場合は作成したレコードを削除して失敗させる。
// 通知できない限りサインアップは一切の効果を持たない。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	// 1. 入力検証
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || in.Password == "" || name == "" {
		return nil, model.NewValidationError("メールアドレス、パスワード、氏名は必須です")
	}
	if !strings.Contains(email, "@") {
		return nil, model.NewValidationError("メールアドレスの形式が不正です")
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, model.NewValidationError("ロールはpatient、doctor、adminのいずれかを指定してください")
	}
	if role == model.RolePatient && in.DateOfBirth.IsZero() {
		return nil, model.NewValidationError("患者登録には生年月日が必要です")
	}

	// 2. 検証済みアカウントの重複チェック
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	// 3. パスワードハッシュと確認コードの生成
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	otp, err := generateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := time.Now()
	pending := &model.PendingUser{
		Name:      name,
		Email:     email,
		Password:  hashed,
		Role:      role,
		OTP:       otp,
		OTPExpiry: now.Add(s.config.OTPTTL),
		CreatedAt: now,
	}

	// 4. ロール固有情報の組み立て
	switch role {
	case model.RoleDoctor:
		pending.Name = normalizeDoctorName(name)
		// 医師は登録時点で診察可能として扱う。
		pending.DoctorInfo = &model.DoctorInfo{Verified: true}
	case model.RolePatient:
		serial, err := generatePatientSerial(now)
		if err != nil {
			return nil, fmt.Errorf("failed to generate patient serial: %w", err)
		}
		pending.PatientInfo = &model.PatientInfo{
			DateOfBirth:    in.DateOfBirth,
			Gender:         strings.TrimSpace(in.Gender),
			MedicalHistory: s.sanitizer.CleanAll(in.MedicalHistory),
			Serial:         serial,
		}
	}

	// 5. 検証待ちレコードの作成。同一メールの既存レコードは置き換える。
	pendingID, err := s.pendingRepo.Upsert(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("failed to store pending registration: %w", err)
	}

	// 6. 確認コードの送信。失敗したらレコードを削除してサインアップ自体を失敗させる。
	if err := s.mail.SendVerificationCode(ctx, email, pending.Name, otp); err != nil {
		slog.Error("failed to send verification code",
			slog.String("pending_id", pendingID),
			slog.String("error", err.Error()),
		)
		if delErr := s.pendingRepo.DeleteByID(ctx, pendingID); delErr != nil {
			slog.Error("failed to roll back pending registration",
				slog.String("pending_id", pendingID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, model.NewNotificationFailedError()
	}

	slog.Info("pending registration created",
		slog.String("pending_id", pendingID),
		slog.String("role", string(role)),
	)
	return &SignupResult{PendingID: pendingID, MaskedEmail: maskEmail(email)}, nil
}

// VerifyEmail は確認コードを検証し、検証待ちレコードを恒久アカウントへ昇格させる。
// 検証待ちレコードが見つからない場合は既存アカウントの再検証として扱う。
// 昇格はUser作成→PendingUser削除の順で行い、作成時のemail重複は
// 昇格済みとして扱う（2回の検証が競合しても二重アカウントにならない）。
func (s *Service) VerifyEmail(ctx context.Context, id, otp, deviceInfo string) (*AuthResult, error) {
	if id == "" || otp == "" {
		return nil, model.NewValidationError("IDと確認コードは必須です")
	}

	pending, err := s.pendingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending registration: %w", err)
	}

	var user *model.User
	if pending != nil {
		user, err = s.verifyPending(ctx, pending, otp)
	} else {
		user, err = s.verifyExistingUser(ctx, id, otp)
	}
	if err != nil {
		return nil, err
	}

	result, err := s.createSession(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}
	slog.Info("email verified",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return result, nil
}

// verifyPending は検証待ちレコードの確認コードを照合しUserへ昇格させる。
// 有効期限は確認コードが完全一致した場合にのみ検査する。
func (s *Service) verifyPending(ctx context.Context, pending *model.PendingUser, otp string) (*model.User, error) {
	if pending.OTP != otp {
		return nil, model.NewInvalidOTPError()
	}
	if time.Now().After(pending.OTPExpiry) {
		return nil, model.NewOTPExpiredError()
	}

	now := time.Now()
	user := &model.User{
		Name:          pending.Name,
		Email:         pending.Email,
		Password:      pending.Password,
		Role:          pending.Role,
		EmailVerified: true,
		DoctorInfo:    pending.DoctorInfo,
		PatientInfo:   pending.PatientInfo,
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		LastActive:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// 競合する検証で先に昇格済み。既存アカウントを採用する。
			promoted, findErr := s.userRepo.FindByEmail(ctx, pending.Email)
			if findErr != nil {
				return nil, fmt.Errorf("failed to find promoted user: %w", findErr)
			}
			if promoted == nil {
				return nil, fmt.Errorf("failed to promote pending registration: %w", err)
			}
			user = promoted
		} else {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}

	// 昇格の完了点。削除に失敗してもUserは有効で、残骸はTTLが回収する。
	if err := s.pendingRepo.DeleteByID(ctx, pending.ID); err != nil {
		slog.Warn("failed to delete promoted pending registration",
			slog.String("pending_id", pending.ID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

// verifyExistingUser は既存アカウントの再検証（レガシー経路）を処理する。
func (s *Service) verifyExistingUser(ctx context.Context, id, otp string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("登録")
	}
	if user.OTP == "" || user.OTP != otp {
		return nil, model.NewInvalidOTPError()
	}
	if user.OTPExpiry == nil || time.Now().After(*user.OTPExpiry) {
		return nil, model.NewOTPExpiredError()
	}

	user.EmailVerified = true
	user.OTP = ""
	user.OTPExpiry = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ResendOTP は確認コードを再生成して送信する。
// 新しいコードはメール送信が成功した後にのみ保存する。ユーザーに届かなかった
// コードが既存のコードを無効化することはない。
func (s *Service) ResendOTP(ctx context.Context, id string) error {
	if id == "" {
		return model.NewValidationError("IDは必須です")
	}

	otp, err := generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	expiry := time.Now().Add(s.config.OTPTTL)

	pending, err := s.pendingRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find pending registration: %w", err)
	}
	if pending != nil {
		if err := s.mail.SendVerificationCode(ctx, pending.Email, pending.Name, otp); err != nil {
			slog.Error("failed to resend verification code",
				slog.String("pending_id", id),
				slog.String("error", err.Error()),
			)
			return model.NewNotificationFailedError()
		}
		if err := s.pendingRepo.UpdateOTP(ctx, id, otp, expiry); err != nil {
			return fmt.Errorf("failed to update otp: %w", err)
		}
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewNotFoundError("登録")
	}
	if user.EmailVerified {
		return model.NewAlreadyVerifiedError()
	}

	if err := s.mail.SendVerificationCode(ctx, user.Email, user.Name, otp); err != nil {
		slog.Error("failed to resend verification code",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return model.NewNotificationFailedError()
	}
	user.OTP = otp
	user.OTPExpiry = &expiry
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Login は資格情報を検証しトークンとセッションを発行する。
// 未知のメールアドレスと誤ったパスワードはどちらも同じINVALID_CREDENTIALSを返し、
// アカウントの存在を列挙できないようにする。
func (s *Service) Login(ctx context.Context, email, password, requestedRole, deviceInfo string) (*AuthResult, error) {
	// 1. 入力検証と正規化
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です")
	}

	// 2. 検証待ちレコードがある場合はアカウント未確定
	pending, err := s.pendingRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending registration: %w", err)
	}
	if pending != nil {
		return nil, model.NewVerificationRequiredError()
	}

	// 3. アカウント検索
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	// 4. 要求ロールの照合
	if requestedRole != "" {
		role, ok := model.ParseRole(requestedRole)
		if !ok {
			return nil, model.NewValidationError("ロールはpatient、doctor、adminのいずれかを指定してください")
		}
		if role != user.Role {
			return nil, model.NewRoleMismatchError(role)
		}
	}

	// 5. パスワード照合
	if !s.hasher.Compare(user.Password, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	// 6. 未検証アカウントは新しい確認コードを発行して検証を要求する
	if !user.EmailVerified {
		if err := s.reissueOTP(ctx, user); err != nil {
			return nil, err
		}
		return nil, model.NewVerificationRequiredError()
	}

	// 7. セッション発行
	now := time.Now()
	if err := s.userRepo.UpdateLastActive(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last active: %w", err)
	}
	user.LastActive = now

	result, err := s.createSession(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return result, nil
}

// reissueOTP は未検証アカウントへ新しい確認コードを保存して送信する。
// 送信に失敗しても保存済みコードで後続のResendOTP・再ログインが機能するため
// エラーにはしない。
func (s *Service) reissueOTP(ctx context.Context, user *model.User) error {
	otp, err := generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	expiry := time.Now().Add(s.config.OTPTTL)
	user.OTP = otp
	user.OTPExpiry = &expiry
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.mail.SendVerificationCode(ctx, user.Email, user.Name, otp); err != nil {
		slog.Warn("failed to send verification code on login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Logout はセッションを無効化する。一方向の遷移で再有効化はできない。
// 一致するセッションがないトークンでも成功として扱う（冪等）。
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return model.NewMissingTokenError()
	}
	if err := s.sessionRepo.InvalidateByToken(ctx, sessionToken); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// ValidateSession はトークンを検証し対応するユーザーの公開ビューを返す。
// 署名・形式の検証、有効期限、サーバー側セッションの有効性を順に確認する。
func (s *Service) ValidateSession(ctx context.Context, sessionToken string) (*model.User, error) {
	if sessionToken == "" {
		return nil, model.NewMissingTokenError()
	}

	claims, err := s.tokens.Verify(sessionToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, model.NewTokenExpiredError()
		}
		return nil, model.NewInvalidTokenError()
	}

	session, err := s.sessionRepo.FindValidByToken(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionRevokedError()
	}

	if err := s.sessionRepo.UpdateLastActive(ctx, sessionToken, time.Now()); err != nil {
		slog.Warn("failed to refresh session last active",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// アカウント削除後のセッションは失効扱い
		return nil, model.NewSessionRevokedError()
	}
	return user.Public(), nil
}

// createSession はトークンを発行しセッションレコードを作成する。
func (s *Service) createSession(ctx context.Context, user *model.User, deviceInfo string) (*AuthResult, error) {
	signed, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		UserID:     user.ID,
		Token:      signed,
		IsValid:    true,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AuthResult{Token: signed, ExpiresAt: expiresAt, User: user.Public()}, nil
}
