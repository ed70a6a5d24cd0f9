// Package admin はアカウント管理とシステム設定のドメインロジックを提供する。
package admin

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
)

// PatientSummary は患者一覧表示用に最新の分類結果を付加したビュー。
type PatientSummary struct {
	User *model.User `json:"user"`
	// LatestClassification はレポートが1件もない場合は空。
	LatestClassification model.Classification `json:"latestClassification,omitempty"`
	LatestReportAt       *time.Time           `json:"latestReportAt,omitempty"`
}

// Service は管理者操作のビジネスロジックを提供する。
type Service struct {
	userRepo        repository.UserRepository
	sessionRepo     repository.SessionRepository
	reportRepo      repository.ReportRepository
	appointmentRepo repository.AppointmentRepository
	configRepo      repository.SystemConfigRepository
	hasher          *security.PasswordHasher
	mail            mailer.Mailer
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	reportRepo repository.ReportRepository,
	appointmentRepo repository.AppointmentRepository,
	configRepo repository.SystemConfigRepository,
	hasher *security.PasswordHasher,
	mail mailer.Mailer,
) *Service {
	return &Service{
		userRepo:        userRepo,
		sessionRepo:     sessionRepo,
		reportRepo:      reportRepo,
		appointmentRepo: appointmentRepo,
		configRepo:      configRepo,
		hasher:          hasher,
		mail:            mail,
	}
}

// ListDoctors は医師一覧を氏名の昇順で返す。
func (s *Service) ListDoctors(ctx context.Context) ([]*model.User, error) {
	return s.listPublic(ctx, model.RoleDoctor, "name")
}

// ListAdmins は管理者一覧を作成日時の昇順で返す。
func (s *Service) ListAdmins(ctx context.Context) ([]*model.User, error) {
	return s.listPublic(ctx, model.RoleAdmin, "createdAt")
}

func (s *Service) listPublic(ctx context.Context, role model.Role, sortField string) ([]*model.User, error) {
	users, err := s.userRepo.ListByRole(ctx, role, sortField)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	public := make([]*model.User, len(users))
	for i, u := range users {
		public[i] = u.Public()
	}
	return public, nil
}

// ListPatients は患者一覧を氏名の昇順で返す。
// 各患者には最新レポートの分類結果を付加する。
func (s *Service) ListPatients(ctx context.Context) ([]*PatientSummary, error) {
	patients, err := s.userRepo.ListByRole(ctx, model.RolePatient, "name")
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	ids := make([]string, len(patients))
	for i, p := range patients {
		ids[i] = p.ID
	}
	latest, err := s.reportRepo.LatestByPatients(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest reports: %w", err)
	}

	summaries := make([]*PatientSummary, len(patients))
	for i, p := range patients {
		summary := &PatientSummary{User: p.Public()}
		if report, ok := latest[p.ID]; ok {
			summary.LatestClassification = report.Classification
			createdAt := report.CreatedAt
			summary.LatestReportAt = &createdAt
		}
		summaries[i] = summary
	}
	return summaries, nil
}

// DeleteUser はアカウントと紐づくセッションを削除する。
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return model.NewValidationError("ユーザーIDは必須です")
	}
	deleted, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("ユーザー")
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, id); err != nil {
		slog.Warn("failed to delete sessions of removed user",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}
	slog.Info("user deleted", slog.String("user_id", id))
	return nil
}

// ClassificationEnabled はMRI分類機能のトグル状態を返す。
// 設定レコードがない場合は有効として扱う。
func (s *Service) ClassificationEnabled(ctx context.Context) (bool, error) {
	cfg, err := s.configRepo.Get(ctx, model.SystemConfigClassificationEnabled)
	if err != nil {
		return false, fmt.Errorf("failed to load system config: %w", err)
	}
	if cfg == nil {
		return true, nil
	}
	return cfg.Value, nil
}

// SetClassificationEnabled はMRI分類機能のトグルを更新する。
func (s *Service) SetClassificationEnabled(ctx context.Context, enabled bool) error {
	cfg := &model.SystemConfig{
		Key:         model.SystemConfigClassificationEnabled,
		Value:       enabled,
		Description: "MRI分類機能の有効・無効",
		UpdatedAt:   time.Now(),
	}
	if err := s.configRepo.Upsert(ctx, cfg); err != nil {
		return fmt.Errorf("failed to update system config: %w", err)
	}
	slog.Info("classification toggle updated", slog.Bool("enabled", enabled))
	return nil
}

// SeedClassificationConfig は起動時にトグル設定がなければ有効で初期化する。
func (s *Service) SeedClassificationConfig(ctx context.Context) error {
	cfg, err := s.configRepo.Get(ctx, model.SystemConfigClassificationEnabled)
	if err != nil {
		return fmt.Errorf("failed to load system config: %w", err)
	}
	if cfg != nil {
		return nil
	}
	return s.SetClassificationEnabled(ctx, true)
}

// AssignDoctorToPatient は患者に担当医を割り当てる。
// 双方向のリンクを張り、初回診察の予約を作成し、患者へ通知メールを送る。
// メール送信の失敗は割り当てを妨げない。
func (s *Service) AssignDoctorToPatient(ctx context.Context, doctorID, patientID string) error {
	if doctorID == "" || patientID == "" {
		return model.NewValidationError("医師IDと患者IDは必須です")
	}

	doctor, err := s.userRepo.FindByID(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("failed to find doctor: %w", err)
	}
	if doctor == nil || doctor.Role != model.RoleDoctor {
		return model.NewNotFoundError("医師")
	}
	patient, err := s.userRepo.FindByID(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to find patient: %w", err)
	}
	if patient == nil || patient.Role != model.RolePatient {
		return model.NewNotFoundError("患者")
	}

	// 双方向リンク。医師側は重複追加しない。
	patient.AssignedDoctor = doctor.ID
	if err := s.userRepo.Update(ctx, patient); err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	if !containsID(doctor.AssignedPatients, patient.ID) {
		doctor.AssignedPatients = append(doctor.AssignedPatients, patient.ID)
		if err := s.userRepo.Update(ctx, doctor); err != nil {
			return fmt.Errorf("failed to update doctor: %w", err)
		}
	}

	// 初回診察の予約を翌日に作成する
	now := time.Now()
	appointment := &model.Appointment{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Date:      now.Add(24 * time.Hour),
		Status:    model.AppointmentStatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.appointmentRepo.Create(ctx, appointment); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if err := s.mail.SendDoctorAssignment(ctx, patient.Email, patient.Name, doctor.Name); err != nil {
		slog.Warn("failed to send doctor assignment mail",
			slog.String("patient_id", patient.ID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("doctor assigned to patient",
		slog.String("doctor_id", doctor.ID),
		slog.String("patient_id", patient.ID),
	)
	return nil
}

// CreateAdminInput は管理者アカウント作成の入力。
type CreateAdminInput struct {
	Email    string
	Name     string
	Password string
}

// CreateAdmin は検証済みの管理者アカウントを作成し、初期認証情報をメールで送る。
// 同じメールアドレスの管理者が既に存在する場合はパスワードを再設定する。
// create-adminサブコマンドから使用する。
func (s *Service) CreateAdmin(ctx context.Context, in CreateAdminInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" || in.Password == "" {
		return nil, model.NewValidationError("メールアドレス、氏名、パスワードは必須です")
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		if existing.Role != model.RoleAdmin {
			return nil, model.NewDuplicateEmailError()
		}
		existing.Password = hashed
		if err := s.userRepo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reset admin password: %w", err)
		}
		slog.Info("admin password reset", slog.String("user_id", existing.ID))
		return existing.Public(), nil
	}

	now := time.Now()
	admin := &model.User{
		Name:          name,
		Email:         email,
		Password:      hashed,
		Role:          model.RoleAdmin,
		EmailVerified: true,
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		LastActive:    now,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	if err := s.mail.SendAdminCredentials(ctx, admin.Email, admin.Name, in.Password); err != nil {
		slog.Warn("failed to send admin credentials mail",
			slog.String("user_id", admin.ID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("admin created", slog.String("user_id", admin.ID))
	return admin.Public(), nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
