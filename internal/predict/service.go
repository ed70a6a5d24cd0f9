// Package predict はMRI画像の分類実行とレポート作成のドメインロジックを提供する。
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/neuroscan/internal/classifier"
	"github.com/hitoshi/neuroscan/internal/mailer"
	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
)

// ToggleReader はMRI分類機能のトグル状態を読むインターフェース。
// admin.Serviceの部分集合として定義する。
type ToggleReader interface {
	ClassificationEnabled(ctx context.Context) (bool, error)
}

// Service は分類実行のビジネスロジックを提供する。
type Service struct {
	userRepo   repository.UserRepository
	reportRepo repository.ReportRepository
	toggle     ToggleReader
	classify   classifier.Classifier
	mail       mailer.Mailer
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	reportRepo repository.ReportRepository,
	toggle ToggleReader,
	classify classifier.Classifier,
	mail mailer.Mailer,
) *Service {
	return &Service{
		userRepo:   userRepo,
		reportRepo: reportRepo,
		toggle:     toggle,
		classify:   classify,
		mail:       mail,
	}
}

// Predict は患者のMRI画像を分類しレポートとして保存する。
// 分類機能が無効の間は実行を拒否する。担当医がいる場合は新着レポートの
// 通知メールを送る。メール送信の失敗はレポート作成を妨げない。
func (s *Service) Predict(ctx context.Context, patient *model.User, image []byte) (*model.Report, error) {
	if len(image) == 0 {
		return nil, model.NewValidationError("画像データは必須です")
	}

	enabled, err := s.toggle.ClassificationEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification toggle: %w", err)
	}
	if !enabled {
		return nil, model.NewClassifierDisabledError()
	}

	result, err := s.classify.Classify(ctx, image)
	if err != nil {
		slog.Error("classification failed",
			slog.String("patient_id", patient.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewClassifierFailedError()
	}

	now := time.Now()
	report := &model.Report{
		PatientID:      patient.ID,
		Image:          image,
		Classification: result.Classification,
		Scores:         result.Scores,
		Status:         model.ReportStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.notifyAssignedDoctor(ctx, patient)

	slog.Info("report created",
		slog.String("report_id", report.ID),
		slog.String("patient_id", patient.ID),
		slog.String("classification", string(report.Classification)),
	)
	return report, nil
}

// notifyAssignedDoctor は担当医に新着レポートを通知する。担当医が未割り当ての
// 場合は何もしない。
func (s *Service) notifyAssignedDoctor(ctx context.Context, patient *model.User) {
	if patient.AssignedDoctor == "" {
		return
	}
	doctor, err := s.userRepo.FindByID(ctx, patient.AssignedDoctor)
	if err != nil || doctor == nil {
		slog.Warn("failed to resolve assigned doctor",
			slog.String("patient_id", patient.ID),
			slog.String("doctor_id", patient.AssignedDoctor),
		)
		return
	}
	if err := s.mail.SendNewReport(ctx, doctor.Email, doctor.Name, patient.Name); err != nil {
		slog.Warn("failed to send new report mail",
			slog.String("doctor_id", doctor.ID),
			slog.String("error", err.Error()),
		)
	}
}
