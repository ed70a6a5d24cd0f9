package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
	"github.com/hitoshi/neuroscan/internal/security"
	"github.com/hitoshi/neuroscan/internal/token"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn      func(ctx context.Context, email string) (*model.User, error)
	createFn           func(ctx context.Context, user *model.User) error
	updateFn           func(ctx context.Context, user *model.User) error
	updateLastActiveFn func(ctx context.Context, id string, at time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = "user-1"
	return nil
}
func (m *mockUserRepo) Update(ctx context.Context, user *model.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	if m.updateLastActiveFn != nil {
		return m.updateLastActiveFn(ctx, id, at)
	}
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	return false, nil
}
func (m *mockUserRepo) ListByRole(ctx context.Context, role model.Role, sortField string) ([]*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) ListByAssignedDoctor(ctx context.Context, doctorID string) ([]*model.User, error) {
	return nil, nil
}

type mockPendingRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.PendingUser, error)
	findByEmailFn func(ctx context.Context, email string) (*model.PendingUser, error)
	upsertFn      func(ctx context.Context, pending *model.PendingUser) (string, error)
	updateOTPFn   func(ctx context.Context, id, otp string, expiry time.Time) error
	deleteByIDFn  func(ctx context.Context, id string) error
}

func (m *mockPendingRepo) FindByID(ctx context.Context, id string) (*model.PendingUser, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockPendingRepo) FindByEmail(ctx context.Context, email string) (*model.PendingUser, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockPendingRepo) Upsert(ctx context.Context, pending *model.PendingUser) (string, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, pending)
	}
	return "pending-1", nil
}
func (m *mockPendingRepo) UpdateOTP(ctx context.Context, id, otp string, expiry time.Time) error {
	if m.updateOTPFn != nil {
		return m.updateOTPFn(ctx, id, otp, expiry)
	}
	return nil
}
func (m *mockPendingRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	createFn            func(ctx context.Context, session *model.Session) error
	findValidByTokenFn  func(ctx context.Context, token string) (*model.Session, error)
	invalidateByTokenFn func(ctx context.Context, token string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	session.ID = "session-1"
	return nil
}
func (m *mockSessionRepo) FindValidByToken(ctx context.Context, token string) (*model.Session, error) {
	if m.findValidByTokenFn != nil {
		return m.findValidByTokenFn(ctx, token)
	}
	return nil, nil
}
func (m *mockSessionRepo) InvalidateByToken(ctx context.Context, token string) error {
	if m.invalidateByTokenFn != nil {
		return m.invalidateByTokenFn(ctx, token)
	}
	return nil
}
func (m *mockSessionRepo) UpdateLastActive(ctx context.Context, token string, at time.Time) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return nil
}

type mockMailer struct {
	sendVerificationCodeFn func(ctx context.Context, toEmail, toName, code string) error
	sentCodes              []string
}

func (m *mockMailer) SendVerificationCode(ctx context.Context, toEmail, toName, code string) error {
	if m.sendVerificationCodeFn != nil {
		return m.sendVerificationCodeFn(ctx, toEmail, toName, code)
	}
	m.sentCodes = append(m.sentCodes, code)
	return nil
}
func (m *mockMailer) SendDoctorAssignment(ctx context.Context, toEmail, toName, doctorName string) error {
	return nil
}
func (m *mockMailer) SendNewReport(ctx context.Context, toEmail, toName, patientName string) error {
	return nil
}
func (m *mockMailer) SendReportStatus(ctx context.Context, toEmail, toName, status string) error {
	return nil
}
func (m *mockMailer) SendAdminCredentials(ctx context.Context, toEmail, toName, password string) error {
	return nil
}

func newTestService(users *mockUserRepo, pendings *mockPendingRepo, sessions *mockSessionRepo, mail *mockMailer) *Service {
	return NewService(
		users,
		pendings,
		sessions,
		security.NewPasswordHasher(bcrypt.MinCost),
		security.NewSanitizer(),
		token.NewManager("test-secret", 24*time.Hour),
		mail,
		ServiceConfig{OTPTTL: 15 * time.Minute},
	)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want code %s", code)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Fatalf("error code = %s, want %s", apiErr.Code, code)
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := security.NewPasswordHasher(bcrypt.MinCost).Hash(password)
	if err != nil {
		t.Fatalf("ハッシュ生成に失敗: %v", err)
	}
	return hashed
}

// --- テスト ---

// TestService_Signup_Patient は患者のサインアップでシリアル付きの
// 検証待ちレコードが作成されることを検証する。
func TestService_Signup_Patient(t *testing.T) {
	var stored *model.PendingUser
	pendings := &mockPendingRepo{
		upsertFn: func(ctx context.Context, pending *model.PendingUser) (string, error) {
			stored = pending
			return "pending-1", nil
		},
	}
	mail := &mockMailer{}
	svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, mail)

	result, err := svc.Signup(context.Background(), SignupInput{
		Email:       "Taro@Example.com",
		Password:    "secret123",
		Name:        "山田太郎",
		Role:        "patient",
		DateOfBirth: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if result.PendingID != "pending-1" {
		t.Errorf("PendingID = %s, want pending-1", result.PendingID)
	}
	if result.MaskedEmail != "ta***@example.com" {
		t.Errorf("MaskedEmail = %s, want ta***@example.com", result.MaskedEmail)
	}

	if stored == nil {
		t.Fatal("検証待ちレコードが作成されていない")
	}
	if stored.Email != "taro@example.com" {
		t.Errorf("Email = %s, want taro@example.com", stored.Email)
	}
	if stored.Password == "secret123" {
		t.Error("パスワードが平文のまま保存されている")
	}
	if len(stored.OTP) != 6 {
		t.Errorf("OTP = %q, want 6桁", stored.OTP)
	}
	if stored.PatientInfo == nil {
		t.Fatal("PatientInfoが設定されていない")
	}
	serialPattern := regexp.MustCompile(`^PAT-\d{8}-[0-9A-F]{4}$`)
	if !serialPattern.MatchString(stored.PatientInfo.Serial) {
		t.Errorf("Serial = %s, want PAT-YYYYMMDD-XXXX形式", stored.PatientInfo.Serial)
	}
	if len(mail.sentCodes) != 1 || mail.sentCodes[0] != stored.OTP {
		t.Errorf("送信されたコード %v が保存されたOTP %s と一致しない", mail.sentCodes, stored.OTP)
	}
}

// TestService_Signup_DoctorNamePrefix は医師名の敬称正規化を検証する。
func TestService_Signup_DoctorNamePrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
	}{
		{name: "敬称なしは付与される", input: "Suzuki", wantName: "Dr. Suzuki"},
		{name: "Dr.付きはそのまま", input: "Dr. Suzuki", wantName: "Dr. Suzuki"},
		{name: "小文字のdr.もそのまま", input: "dr. suzuki", wantName: "dr. suzuki"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored *model.PendingUser
			pendings := &mockPendingRepo{
				upsertFn: func(ctx context.Context, pending *model.PendingUser) (string, error) {
					stored = pending
					return "pending-1", nil
				},
			}
			svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, &mockMailer{})

			_, err := svc.Signup(context.Background(), SignupInput{
				Email:    "doc@example.com",
				Password: "secret123",
				Name:     tt.input,
				Role:     "doctor",
			})
			if err != nil {
				t.Fatalf("Signup returned error: %v", err)
			}
			if stored.Name != tt.wantName {
				t.Errorf("Name = %s, want %s", stored.Name, tt.wantName)
			}
			if stored.DoctorInfo == nil {
				t.Fatal("DoctorInfoが設定されていない")
			}
			if !stored.DoctorInfo.Verified {
				t.Error("医師が登録時に診察可能になっていない")
			}
		})
	}
}

// TestService_Signup_Validation は入力検証を検証する。
func TestService_Signup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input SignupInput
	}{
		{
			name:  "メールアドレスなし",
			input: SignupInput{Password: "secret", Name: "太郎", Role: "patient"},
		},
		{
			name:  "パスワードなし",
			input: SignupInput{Email: "a@x.com", Name: "太郎", Role: "patient"},
		},
		{
			name:  "氏名なし",
			input: SignupInput{Email: "a@x.com", Password: "secret", Role: "patient"},
		},
		{
			name:  "未知のロール",
			input: SignupInput{Email: "a@x.com", Password: "secret", Name: "太郎", Role: "superuser"},
		},
		{
			name:  "患者なのに生年月日なし",
			input: SignupInput{Email: "a@x.com", Password: "secret", Name: "太郎", Role: "patient"},
		},
		{
			name:  "メールアドレスの形式不正",
			input: SignupInput{Email: "not-an-email", Password: "secret", Name: "太郎", Role: "doctor"},
		},
	}

	svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.input)
			assertAPIErrorCode(t, err, "VALIDATION_ERROR")
		})
	}
}

// TestService_Signup_DuplicateEmail は検証済みアカウントが再サインアップを
// 拒否することを検証する。
func TestService_Signup_DuplicateEmail(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, EmailVerified: true}, nil
		},
	}
	upserted := false
	pendings := &mockPendingRepo{
		upsertFn: func(ctx context.Context, pending *model.PendingUser) (string, error) {
			upserted = true
			return "pending-1", nil
		},
	}
	svc := newTestService(users, pendings, &mockSessionRepo{}, &mockMailer{})

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "taken@example.com", Password: "secret", Name: "太郎", Role: "doctor",
	})
	assertAPIErrorCode(t, err, "DUPLICATE_EMAIL")
	if upserted {
		t.Error("重複エラーなのに検証待ちレコードが作成された")
	}
}

// TestService_Signup_MailFailureRollsBack はメール送信失敗時に
// 検証待ちレコードが削除されサインアップ全体が失敗することを検証する。
func TestService_Signup_MailFailureRollsBack(t *testing.T) {
	deletedID := ""
	pendings := &mockPendingRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	mail := &mockMailer{
		sendVerificationCodeFn: func(ctx context.Context, toEmail, toName, code string) error {
			return errors.New("smtp unavailable")
		},
	}
	svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, mail)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "a@x.com", Password: "secret", Name: "太郎", Role: "doctor",
	})
	assertAPIErrorCode(t, err, "NOTIFICATION_FAILED")
	if deletedID != "pending-1" {
		t.Errorf("削除されたID = %s, want pending-1", deletedID)
	}
}

// TestService_VerifyEmail_PromotesPending は正しい確認コードで
// 検証待ちレコードがUserへ昇格しセッションが発行されることを検証する。
func TestService_VerifyEmail_PromotesPending(t *testing.T) {
	pending := &model.PendingUser{
		ID:        "pending-1",
		Name:      "山田太郎",
		Email:     "taro@example.com",
		Password:  "hashed",
		Role:      model.RolePatient,
		OTP:       "123456",
		OTPExpiry: time.Now().Add(10 * time.Minute),
		PatientInfo: &model.PatientInfo{
			Serial: "PAT-20260830-AB12",
		},
	}
	pendingDeleted := false
	pendings := &mockPendingRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PendingUser, error) {
			if id == "pending-1" {
				return pending, nil
			}
			return nil, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			pendingDeleted = true
			return nil
		},
	}
	var createdUser *model.User
	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			user.ID = "user-1"
			createdUser = user
			return nil
		},
	}
	var createdSession *model.Session
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			session.ID = "session-1"
			createdSession = session
			return nil
		},
	}
	svc := newTestService(users, pendings, sessions, &mockMailer{})

	result, err := svc.VerifyEmail(context.Background(), "pending-1", "123456", "test-agent")
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}

	if createdUser == nil {
		t.Fatal("Userが作成されていない")
	}
	if !createdUser.EmailVerified {
		t.Error("作成されたUserが未検証のまま")
	}
	if createdUser.PatientInfo.Serial != "PAT-20260830-AB12" {
		t.Errorf("Serialが引き継がれていない: %s", createdUser.PatientInfo.Serial)
	}
	if !pendingDeleted {
		t.Error("昇格後に検証待ちレコードが削除されていない")
	}
	if createdSession == nil || !createdSession.IsValid {
		t.Error("有効なセッションが作成されていない")
	}
	if createdSession.DeviceInfo != "test-agent" {
		t.Errorf("DeviceInfo = %s, want test-agent", createdSession.DeviceInfo)
	}
	if result.Token == "" {
		t.Error("トークンが空")
	}
	if result.User.Password != "" {
		t.Error("返却ユーザーにパスワードハッシュが含まれている")
	}
}

// TestService_VerifyEmail_OTPOrdering は確認コードの照合順序を検証する。
// 期限切れ判定はコードが完全一致した場合にのみ行う。
func TestService_VerifyEmail_OTPOrdering(t *testing.T) {
	tests := []struct {
		name     string
		otp      string
		expiry   time.Time
		attempt  string
		wantCode string
	}{
		{
			name:     "不一致なら期限内でもINVALID_OTP",
			otp:      "123456",
			expiry:   time.Now().Add(10 * time.Minute),
			attempt:  "000000",
			wantCode: "INVALID_OTP",
		},
		{
			name:     "不一致なら期限切れでもINVALID_OTP",
			otp:      "123456",
			expiry:   time.Now().Add(-10 * time.Minute),
			attempt:  "000000",
			wantCode: "INVALID_OTP",
		},
		{
			name:     "一致かつ期限切れはOTP_EXPIRED",
			otp:      "123456",
			expiry:   time.Now().Add(-10 * time.Minute),
			attempt:  "123456",
			wantCode: "OTP_EXPIRED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pendings := &mockPendingRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.PendingUser, error) {
					return &model.PendingUser{
						ID: "pending-1", Email: "a@x.com", Role: model.RoleDoctor,
						OTP: tt.otp, OTPExpiry: tt.expiry,
					}, nil
				},
			}
			svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, &mockMailer{})

			_, err := svc.VerifyEmail(context.Background(), "pending-1", tt.attempt, "")
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

// TestService_VerifyEmail_NotFound は消費済み・未知のIDがNOT_FOUNDに
// なることを検証する。
func TestService_VerifyEmail_NotFound(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})

	_, err := svc.VerifyEmail(context.Background(), "gone", "123456", "")
	assertAPIErrorCode(t, err, "NOT_FOUND")
}

// TestService_VerifyEmail_DuplicatePromotion は昇格の競合でemail重複が
// 起きた場合に既存アカウントを採用して成功することを検証する。
func TestService_VerifyEmail_DuplicatePromotion(t *testing.T) {
	pendings := &mockPendingRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PendingUser, error) {
			return &model.PendingUser{
				ID: "pending-1", Email: "a@x.com", Role: model.RoleDoctor,
				OTP: "123456", OTPExpiry: time.Now().Add(10 * time.Minute),
			}, nil
		},
	}
	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateKey
		},
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, Role: model.RoleDoctor, EmailVerified: true}, nil
		},
	}
	svc := newTestService(users, pendings, &mockSessionRepo{}, &mockMailer{})

	result, err := svc.VerifyEmail(context.Background(), "pending-1", "123456", "")
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if result.User.ID != "user-1" {
		t.Errorf("User.ID = %s, want user-1", result.User.ID)
	}
}

// TestService_VerifyEmail_LegacyIdentity は既存アカウントの再検証経路を検証する。
func TestService_VerifyEmail_LegacyIdentity(t *testing.T) {
	expiry := time.Now().Add(10 * time.Minute)
	legacy := &model.User{
		ID: "user-1", Email: "a@x.com", Role: model.RoleDoctor,
		EmailVerified: false, OTP: "654321", OTPExpiry: &expiry,
	}
	var updated *model.User
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return legacy, nil
			}
			return nil, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	svc := newTestService(users, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})

	_, err := svc.VerifyEmail(context.Background(), "user-1", "654321", "")
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if updated == nil {
		t.Fatal("アカウントが更新されていない")
	}
	if !updated.EmailVerified {
		t.Error("検証フラグが立っていない")
	}
	if updated.OTP != "" || updated.OTPExpiry != nil {
		t.Error("使用済みOTPがクリアされていない")
	}
}

// TestService_ResendOTP_DispatchThenPersist は送信成功後にのみ
// 新しい確認コードが保存されることを検証する。
func TestService_ResendOTP_DispatchThenPersist(t *testing.T) {
	var order []string
	pendings := &mockPendingRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PendingUser, error) {
			return &model.PendingUser{ID: id, Email: "a@x.com", OTP: "111111"}, nil
		},
		updateOTPFn: func(ctx context.Context, id, otp string, expiry time.Time) error {
			order = append(order, "persist")
			return nil
		},
	}
	mail := &mockMailer{
		sendVerificationCodeFn: func(ctx context.Context, toEmail, toName, code string) error {
			order = append(order, "dispatch")
			return nil
		},
	}
	svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, mail)

	if err := svc.ResendOTP(context.Background(), "pending-1"); err != nil {
		t.Fatalf("ResendOTP returned error: %v", err)
	}
	if len(order) != 2 || order[0] != "dispatch" || order[1] != "persist" {
		t.Errorf("実行順序 = %v, want [dispatch persist]", order)
	}
}

// TestService_ResendOTP_MailFailureKeepsOldOTP は送信失敗時に既存の
// 確認コードが上書きされないことを検証する。
func TestService_ResendOTP_MailFailureKeepsOldOTP(t *testing.T) {
	persisted := false
	pendings := &mockPendingRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PendingUser, error) {
			return &model.PendingUser{ID: id, Email: "a@x.com", OTP: "111111"}, nil
		},
		updateOTPFn: func(ctx context.Context, id, otp string, expiry time.Time) error {
			persisted = true
			return nil
		},
	}
	mail := &mockMailer{
		sendVerificationCodeFn: func(ctx context.Context, toEmail, toName, code string) error {
			return errors.New("smtp unavailable")
		},
	}
	svc := newTestService(&mockUserRepo{}, pendings, &mockSessionRepo{}, mail)

	err := svc.ResendOTP(context.Background(), "pending-1")
	assertAPIErrorCode(t, err, "NOTIFICATION_FAILED")
	if persisted {
		t.Error("送信失敗なのに新しいOTPが保存された")
	}
}

// TestService_ResendOTP_Errors はNOT_FOUNDとALREADY_VERIFIEDを検証する。
func TestService_ResendOTP_Errors(t *testing.T) {
	t.Run("どちらのストアにもない", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		err := svc.ResendOTP(context.Background(), "gone")
		assertAPIErrorCode(t, err, "NOT_FOUND")
	})

	t.Run("検証済みアカウント", func(t *testing.T) {
		users := &mockUserRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				return &model.User{ID: id, EmailVerified: true}, nil
			},
		}
		svc := newTestService(users, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		err := svc.ResendOTP(context.Background(), "user-1")
		assertAPIErrorCode(t, err, "ALREADY_VERIFIED")
	})
}

// TestService_Login_PendingBlocks は検証待ちのメールアドレスへのログインが
// パスワードの正誤に関わらずVERIFICATION_REQUIREDになることを検証する。
func TestService_Login_PendingBlocks(t *testing.T) {
	pendings := &mockPendingRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.PendingUser, error) {
			return &model.PendingUser{ID: "pending-1", Email: email}, nil
		},
	}
	sessionCreated := false
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			sessionCreated = true
			return nil
		},
	}
	svc := newTestService(&mockUserRepo{}, pendings, sessions, &mockMailer{})

	_, err := svc.Login(context.Background(), "a@x.com", "anything", "", "")
	assertAPIErrorCode(t, err, "VERIFICATION_REQUIRED")
	if sessionCreated {
		t.Error("検証待ちなのにセッションが作成された")
	}
}

// TestService_Login_InvalidCredentials は未知のメールアドレスと誤った
// パスワードが同じエラーコードになることを検証する（列挙攻撃対策）。
func TestService_Login_InvalidCredentials(t *testing.T) {
	hashed := hashPassword(t, "right-password")

	t.Run("未知のメールアドレス", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		_, err := svc.Login(context.Background(), "nobody@x.com", "whatever", "", "")
		assertAPIErrorCode(t, err, "INVALID_CREDENTIALS")
	})

	t.Run("誤ったパスワード", func(t *testing.T) {
		users := &mockUserRepo{
			findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
				return &model.User{
					ID: "user-1", Email: email, Password: hashed,
					Role: model.RolePatient, EmailVerified: true,
				}, nil
			},
		}
		svc := newTestService(users, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		_, err := svc.Login(context.Background(), "a@x.com", "wrong-password", "", "")
		assertAPIErrorCode(t, err, "INVALID_CREDENTIALS")
	})
}

// TestService_Login_RoleMismatch は要求ロールの不一致でセッションが
// 作成されないことを検証する。
func TestService_Login_RoleMismatch(t *testing.T) {
	hashed := hashPassword(t, "right-password")
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID: "user-1", Email: email, Password: hashed,
				Role: model.RolePatient, EmailVerified: true,
			}, nil
		},
	}
	sessionCreated := false
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			sessionCreated = true
			return nil
		},
	}
	svc := newTestService(users, &mockPendingRepo{}, sessions, &mockMailer{})

	_, err := svc.Login(context.Background(), "a@x.com", "right-password", "doctor", "")
	assertAPIErrorCode(t, err, "ROLE_MISMATCH")
	if sessionCreated {
		t.Error("ロール不一致なのにセッションが作成された")
	}
}

// TestService_Login_UnverifiedSelfHeals は未検証アカウントへのログインで
// 新しい確認コードが保存・送信されVERIFICATION_REQUIREDになることを検証する。
func TestService_Login_UnverifiedSelfHeals(t *testing.T) {
	hashed := hashPassword(t, "right-password")
	var updated *model.User
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID: "user-1", Email: email, Name: "太郎", Password: hashed,
				Role: model.RolePatient, EmailVerified: false,
			}, nil
		},
		updateFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	mail := &mockMailer{}
	svc := newTestService(users, &mockPendingRepo{}, &mockSessionRepo{}, mail)

	_, err := svc.Login(context.Background(), "a@x.com", "right-password", "", "")
	assertAPIErrorCode(t, err, "VERIFICATION_REQUIRED")
	if updated == nil || updated.OTP == "" || updated.OTPExpiry == nil {
		t.Fatal("新しいOTPが保存されていない")
	}
	if len(mail.sentCodes) != 1 || mail.sentCodes[0] != updated.OTP {
		t.Errorf("送信されたコード %v が保存されたOTP %s と一致しない", mail.sentCodes, updated.OTP)
	}
}

// TestService_Login_Success は正常なログインを検証する。
func TestService_Login_Success(t *testing.T) {
	hashed := hashPassword(t, "right-password")
	lastActiveBumped := false
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID: "user-1", Email: email, Password: hashed,
				Role: model.RoleDoctor, EmailVerified: true,
			}, nil
		},
		updateLastActiveFn: func(ctx context.Context, id string, at time.Time) error {
			lastActiveBumped = true
			return nil
		},
	}
	var createdSession *model.Session
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			session.ID = "session-1"
			createdSession = session
			return nil
		},
	}
	svc := newTestService(users, &mockPendingRepo{}, sessions, &mockMailer{})

	result, err := svc.Login(context.Background(), "Doc@Example.com", "right-password", "doctor", "agent-x")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !lastActiveBumped {
		t.Error("最終アクティブ時刻が更新されていない")
	}
	if createdSession == nil || createdSession.UserID != "user-1" {
		t.Fatal("セッションが作成されていない")
	}
	if result.Token != createdSession.Token {
		t.Error("返却トークンとセッションのトークンが一致しない")
	}
	if result.User.Password != "" {
		t.Error("返却ユーザーにパスワードハッシュが含まれている")
	}

	claims, err := token.NewManager("test-secret", 24*time.Hour).Verify(result.Token)
	if err != nil {
		t.Fatalf("発行トークンの検証に失敗: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != model.RoleDoctor {
		t.Errorf("claims = {%s %s}, want {user-1 doctor}", claims.UserID, claims.Role)
	}
}

// TestService_Logout はログアウトの冪等性を検証する。
func TestService_Logout(t *testing.T) {
	t.Run("トークンなしはMISSING_TOKEN", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		err := svc.Logout(context.Background(), "")
		assertAPIErrorCode(t, err, "MISSING_TOKEN")
	})

	t.Run("未知のトークンでも成功", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		if err := svc.Logout(context.Background(), "unknown-token"); err != nil {
			t.Errorf("Logout returned error: %v", err)
		}
	})

	t.Run("セッションを無効化する", func(t *testing.T) {
		invalidated := ""
		sessions := &mockSessionRepo{
			invalidateByTokenFn: func(ctx context.Context, token string) error {
				invalidated = token
				return nil
			},
		}
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, sessions, &mockMailer{})
		if err := svc.Logout(context.Background(), "tok-1"); err != nil {
			t.Fatalf("Logout returned error: %v", err)
		}
		if invalidated != "tok-1" {
			t.Errorf("無効化されたトークン = %s, want tok-1", invalidated)
		}
	})
}

// TestService_ValidateSession はセッション検証の失敗分類を検証する。
func TestService_ValidateSession(t *testing.T) {
	tokens := token.NewManager("test-secret", 24*time.Hour)

	t.Run("トークンなし", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		_, err := svc.ValidateSession(context.Background(), "")
		assertAPIErrorCode(t, err, "MISSING_TOKEN")
	})

	t.Run("形式不正", func(t *testing.T) {
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		_, err := svc.ValidateSession(context.Background(), "garbage")
		assertAPIErrorCode(t, err, "INVALID_TOKEN")
	})

	t.Run("有効期限切れはセッションが有効でもTOKEN_EXPIRED", func(t *testing.T) {
		expired, _, err := token.NewManager("test-secret", -time.Hour).Issue("user-1", model.RolePatient)
		if err != nil {
			t.Fatalf("トークン発行に失敗: %v", err)
		}
		sessions := &mockSessionRepo{
			findValidByTokenFn: func(ctx context.Context, tok string) (*model.Session, error) {
				return &model.Session{ID: "session-1", UserID: "user-1", IsValid: true}, nil
			},
		}
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, sessions, &mockMailer{})
		_, err = svc.ValidateSession(context.Background(), expired)
		assertAPIErrorCode(t, err, "TOKEN_EXPIRED")
	})

	t.Run("セッションなしはSESSION_REVOKED", func(t *testing.T) {
		signed, _, err := tokens.Issue("user-1", model.RolePatient)
		if err != nil {
			t.Fatalf("トークン発行に失敗: %v", err)
		}
		svc := newTestService(&mockUserRepo{}, &mockPendingRepo{}, &mockSessionRepo{}, &mockMailer{})
		_, err = svc.ValidateSession(context.Background(), signed)
		assertAPIErrorCode(t, err, "SESSION_REVOKED")
	})

	t.Run("成功時はパスワードを含まないユーザーを返す", func(t *testing.T) {
		signed, _, err := tokens.Issue("user-1", model.RoleDoctor)
		if err != nil {
			t.Fatalf("トークン発行に失敗: %v", err)
		}
		sessions := &mockSessionRepo{
			findValidByTokenFn: func(ctx context.Context, tok string) (*model.Session, error) {
				return &model.Session{ID: "session-1", UserID: "user-1", IsValid: true}, nil
			},
		}
		users := &mockUserRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				return &model.User{ID: id, Role: model.RoleDoctor, Password: "hashed", OTP: "111111"}, nil
			},
		}
		svc := newTestService(users, &mockPendingRepo{}, sessions, &mockMailer{})
		user, err := svc.ValidateSession(context.Background(), signed)
		if err != nil {
			t.Fatalf("ValidateSession returned error: %v", err)
		}
		if user.Password != "" || user.OTP != "" {
			t.Error("秘匿フィールドが除去されていない")
		}
	})
}

// TestService_LogoutThenValidate はログアウト後の検証がSESSION_REVOKEDに
// なることを検証する。
func TestService_LogoutThenValidate(t *testing.T) {
	tokens := token.NewManager("test-secret", 24*time.Hour)
	signed, _, err := tokens.Issue("user-1", model.RolePatient)
	if err != nil {
		t.Fatalf("トークン発行に失敗: %v", err)
	}

	// InvalidateByToken後はFindValidByTokenが一致しなくなる実装を模す
	valid := true
	sessions := &mockSessionRepo{
		findValidByTokenFn: func(ctx context.Context, tok string) (*model.Session, error) {
			if valid && tok == signed {
				return &model.Session{ID: "session-1", UserID: "user-1", IsValid: true}, nil
			}
			return nil, nil
		},
		invalidateByTokenFn: func(ctx context.Context, tok string) error {
			if tok == signed {
				valid = false
			}
			return nil
		},
	}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Role: model.RolePatient}, nil
		},
	}
	svc := newTestService(users, &mockPendingRepo{}, sessions, &mockMailer{})

	if _, err := svc.ValidateSession(context.Background(), signed); err != nil {
		t.Fatalf("ログアウト前の検証に失敗: %v", err)
	}
	if err := svc.Logout(context.Background(), signed); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	_, err = svc.ValidateSession(context.Background(), signed)
	assertAPIErrorCode(t, err, "SESSION_REVOKED")
}
