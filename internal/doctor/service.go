// Package doctor は医師向けの患者レビューと予約管理のドメインロジックを提供する。
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/neuroscan/internal/mailer"
	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
	"github.com/hitoshi/neuroscan/internal/security"
)

// PatientWithReport は担当患者と最新レポートを結合したビュー。
type PatientWithReport struct {
	User *model.User `json:"user"`
	// LatestReport はレポートが1件もない場合はnil。画像データは含まない。
	LatestReport *model.Report `json:"latestReport,omitempty"`
}

// CategoryGroup は分類ラベルごとの担当患者グループ。
type CategoryGroup struct {
	Category string        `json:"category"`
	Patients []*model.User `json:"patients"`
}

// UnclassifiedCategory はレポートが1件もない患者のグループ名。
const UnclassifiedCategory = "Unclassified"

// AppointmentsOverview は予約一覧と次回予約を結合したビュー。
type AppointmentsOverview struct {
	Appointments []*model.Appointment `json:"appointments"`
	// Next は現在時刻以降で最も近いscheduled/approvedの予約。なければnil。
	Next *model.Appointment `json:"next,omitempty"`
}

// Service は医師操作のビジネスロジックを提供する。
type Service struct {
	userRepo        repository.UserRepository
	reportRepo      repository.ReportRepository
	appointmentRepo repository.AppointmentRepository
	sanitizer       *security.Sanitizer
	mail            mailer.Mailer
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	reportRepo repository.ReportRepository,
	appointmentRepo repository.AppointmentRepository,
	sanitizer *security.Sanitizer,
	mail mailer.Mailer,
) *Service {
	return &Service{
		userRepo:        userRepo,
		reportRepo:      reportRepo,
		appointmentRepo: appointmentRepo,
		sanitizer:       sanitizer,
		mail:            mail,
	}
}

// AssignedPatients は担当患者一覧を最新レポート付きで返す。
func (s *Service) AssignedPatients(ctx context.Context, doctorID string) ([]*PatientWithReport, error) {
	patients, err := s.userRepo.ListByAssignedDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned patients: %w", err)
	}

	ids := make([]string, len(patients))
	for i, p := range patients {
		ids[i] = p.ID
	}
	latest, err := s.reportRepo.LatestByPatients(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest reports: %w", err)
	}

	results := make([]*PatientWithReport, len(patients))
	for i, p := range patients {
		results[i] = &PatientWithReport{
			User:         p.Public(),
			LatestReport: latest[p.ID],
		}
	}
	return results, nil
}

// PatientsByCategory は担当患者を最新レポートの分類ラベルでグループ化して返す。
// グループは固定のラベル順で、レポートのない患者は末尾のUnclassifiedに入る。
func (s *Service) PatientsByCategory(ctx context.Context, doctorID string) ([]*CategoryGroup, error) {
	withReports, err := s.AssignedPatients(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*model.User)
	for _, pr := range withReports {
		category := UnclassifiedCategory
		if pr.LatestReport != nil {
			category = string(pr.LatestReport.Classification)
		}
		grouped[category] = append(grouped[category], pr.User)
	}

	groups := make([]*CategoryGroup, 0, len(model.Classifications)+1)
	for _, c := range model.Classifications {
		groups = append(groups, &CategoryGroup{
			Category: string(c),
			Patients: grouped[string(c)],
		})
	}
	groups = append(groups, &CategoryGroup{
		Category: UnclassifiedCategory,
		Patients: grouped[UnclassifiedCategory],
	})
	return groups, nil
}

// PatientReports は担当患者のレポート一覧を返す。
// 担当外の患者は存在の有無を明かさずNOT_FOUNDを返す。
func (s *Service) PatientReports(ctx context.Context, doctorID, patientID string) ([]*model.Report, error) {
	if _, err := s.ownedPatient(ctx, doctorID, patientID); err != nil {
		return nil, err
	}
	reports, err := s.reportRepo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// UpdateReportInput はレポート注釈の入力。
type UpdateReportInput struct {
	DoctorNotes            string
	RecommendedMedications []string
	RecommendedTherapies   []string
	FollowUpDate           *time.Time
	Status                 string
}

// UpdateReport は担当患者のレポートに所見を書き込む。
// 自由記述フィールドはHTMLを除去して保存する。レビュー者と時刻を記録し、
// 患者へステータス更新メールを送る。メール送信の失敗は更新を妨げない。
func (s *Service) UpdateReport(ctx context.Context, doctorID, reportID string, in UpdateReportInput) (*model.Report, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	if report == nil {
		return nil, model.NewNotFoundError("レポート")
	}
	patient, err := s.ownedPatient(ctx, doctorID, report.PatientID)
	if err != nil {
		return nil, err
	}

	status := model.ReportStatus(in.Status)
	switch status {
	case model.ReportStatusPending, model.ReportStatusReviewed, model.ReportStatusClosed:
	default:
		return nil, model.NewValidationError("ステータスはpending、reviewed、closedのいずれかを指定してください")
	}

	now := time.Now()
	report.DoctorNotes = s.sanitizer.Clean(in.DoctorNotes)
	report.RecommendedMedications = s.sanitizer.CleanAll(in.RecommendedMedications)
	report.RecommendedTherapies = s.sanitizer.CleanAll(in.RecommendedTherapies)
	report.FollowUpDate = in.FollowUpDate
	report.Status = status
	report.ReviewedBy = doctorID
	report.ReviewedAt = &now
	report.UpdatedAt = now

	if err := s.reportRepo.Update(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	if err := s.mail.SendReportStatus(ctx, patient.Email, patient.Name, string(status)); err != nil {
		slog.Warn("failed to send report status mail",
			slog.String("patient_id", patient.ID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("report reviewed",
		slog.String("report_id", report.ID),
		slog.String("doctor_id", doctorID),
		slog.String("status", string(status)),
	)
	return report, nil
}

// DoctorAppointments は医師の予約一覧と次回予約を返す。
func (s *Service) DoctorAppointments(ctx context.Context, doctorID string, filter repository.AppointmentFilter) (*AppointmentsOverview, error) {
	appointments, err := s.appointmentRepo.ListByDoctor(ctx, doctorID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return overview(appointments), nil
}

// PatientAppointments は患者の予約一覧と次回予約を返す。
func (s *Service) PatientAppointments(ctx context.Context, patientID string, filter repository.AppointmentFilter) (*AppointmentsOverview, error) {
	appointments, err := s.appointmentRepo.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return overview(appointments), nil
}

// UpdateAppointmentStatus は自分の予約のステータスを更新する。
// 遷移先はapproved、denied、completedのみ許可する。
func (s *Service) UpdateAppointmentStatus(ctx context.Context, doctorID, appointmentID, status string) (*model.Appointment, error) {
	next := model.AppointmentStatus(status)
	switch next {
	case model.AppointmentStatusApproved, model.AppointmentStatusDenied, model.AppointmentStatusCompleted:
	default:
		return nil, model.NewValidationError("ステータスはapproved、denied、completedのいずれかを指定してください")
	}

	appointment, err := s.appointmentRepo.FindByIDAndDoctor(ctx, appointmentID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}
	if appointment == nil {
		return nil, model.NewNotFoundError("予約")
	}

	appointment.Status = next
	appointment.UpdatedAt = time.Now()
	if err := s.appointmentRepo.Update(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return appointment, nil
}

// ownedPatient は患者が医師の担当であることを確認する。
// 担当外・非患者・存在しない場合はいずれもNOT_FOUNDを返す。
func (s *Service) ownedPatient(ctx context.Context, doctorID, patientID string) (*model.User, error) {
	patient, err := s.userRepo.FindByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	if patient == nil || patient.Role != model.RolePatient || patient.AssignedDoctor != doctorID {
		return nil, model.NewNotFoundError("患者")
	}
	return patient, nil
}

// overview は日付昇順の予約一覧から次回予約を求める。
func overview(appointments []*model.Appointment) *AppointmentsOverview {
	now := time.Now()
	result := &AppointmentsOverview{Appointments: appointments}
	for _, a := range appointments {
		if a.Date.Before(now) {
			continue
		}
		if a.Status == model.AppointmentStatusScheduled || a.Status == model.AppointmentStatusApproved {
			result.Next = a
			break
		}
	}
	return result
}
