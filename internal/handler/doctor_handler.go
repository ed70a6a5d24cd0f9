package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/neuroscan/internal/doctor"
	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
)

// DoctorServiceInterface は医師ハンドラーが必要とするサービスインターフェース。
type DoctorServiceInterface interface {
	AssignedPatients(ctx context.Context, doctorID string) ([]*doctor.PatientWithReport, error)
	PatientsByCategory(ctx context.Context, doctorID string) ([]*doctor.CategoryGroup, error)
	PatientReports(ctx context.Context, doctorID, patientID string) ([]*model.Report, error)
	UpdateReport(ctx context.Context, doctorID, reportID string, in doctor.UpdateReportInput) (*model.Report, error)
	DoctorAppointments(ctx context.Context, doctorID string, filter repository.AppointmentFilter) (*doctor.AppointmentsOverview, error)
	UpdateAppointmentStatus(ctx context.Context, doctorID, appointmentID, status string) (*model.Appointment, error)
}

// DoctorHandler は担当患者・レポート・予約管理のHTTPハンドラー。
type DoctorHandler struct {
	service DoctorServiceInterface
}

// NewDoctorHandler はDoctorHandlerを生成する。
func NewDoctorHandler(service DoctorServiceInterface) *DoctorHandler {
	return &DoctorHandler{service: service}
}

// updateReportRequest はレポート注釈更新リクエストのボディ。
type updateReportRequest struct {
	DoctorNotes            string   `json:"doctorNotes"`
	RecommendedMedications []string `json:"recommendedMedications"`
	RecommendedTherapies   []string `json:"recommendedTherapies"`
	// FollowUpDateはYYYY-MM-DD形式。空なら設定しない。
	FollowUpDate string `json:"followUpDate,omitempty"`
	Status       string `json:"status"`
}

// appointmentStatusRequest は予約状態更新リクエストのボディ。
type appointmentStatusRequest struct {
	Status string `json:"status"`
}

// AssignedPatients は担当患者一覧を最新レポート付きで返す。
// GET /api/doctor/patients
func (h *DoctorHandler) AssignedPatients(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}

	patients, err := h.service.AssignedPatients(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// PatientsByCategory は担当患者を分類ラベルごとにグループ化して返す。
// GET /api/doctor/patients/categorized
func (h *DoctorHandler) PatientsByCategory(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}

	groups, err := h.service.PatientsByCategory(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// PatientReports は担当患者のレポート一覧を返す。
// GET /api/doctor/patients/{id}/reports
func (h *DoctorHandler) PatientReports(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}
	patientID := chi.URLParam(r, "id")

	reports, err := h.service.PatientReports(r.Context(), user.ID, patientID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// UpdateReport はレポートの注釈とレビュー情報を更新する。
// PUT /api/doctor/reports/{id}
func (h *DoctorHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}
	reportID := chi.URLParam(r, "id")

	var req updateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	in := doctor.UpdateReportInput{
		DoctorNotes:            req.DoctorNotes,
		RecommendedMedications: req.RecommendedMedications,
		RecommendedTherapies:   req.RecommendedTherapies,
		Status:                 req.Status,
	}
	if req.FollowUpDate != "" {
		followUp, err := time.Parse("2006-01-02", req.FollowUpDate)
		if err != nil {
			handleServiceError(w, model.NewValidationError("followUpDateはYYYY-MM-DD形式で指定してください。"))
			return
		}
		in.FollowUpDate = &followUp
	}

	report, err := h.service.UpdateReport(r.Context(), user.ID, reportID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Appointments は医師の予約一覧と次回予約を返す。
// GET /api/doctor/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD&status=a,b
func (h *DoctorHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}

	filter, err := appointmentFilterFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	overview, err := h.service.DoctorAppointments(r.Context(), user.ID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// UpdateAppointmentStatus は予約の状態を更新する。
// PUT /api/doctor/appointments/{id}/status
func (h *DoctorHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}
	appointmentID := chi.URLParam(r, "id")

	var req appointmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	appointment, err := h.service.UpdateAppointmentStatus(r.Context(), user.ID, appointmentID, req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

// appointmentFilterFromQuery はクエリパラメータから予約の絞り込み条件を組み立てる。
func appointmentFilterFromQuery(r *http.Request) (repository.AppointmentFilter, error) {
	var filter repository.AppointmentFilter

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, model.NewValidationError("fromはYYYY-MM-DD形式で指定してください。")
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, model.NewValidationError("toはYYYY-MM-DD形式で指定してください。")
		}
		// toの指定日を丸ごと含める
		end := t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	if status := r.URL.Query().Get("status"); status != "" {
		for _, s := range strings.Split(status, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			filter.Statuses = append(filter.Statuses, model.AppointmentStatus(s))
		}
	}

	return filter, nil
}
