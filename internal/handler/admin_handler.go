package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/neuroscan/internal/admin"
	"github.com/hitoshi/neuroscan/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListDoctors(ctx context.Context) ([]*model.User, error)
	ListPatients(ctx context.Context) ([]*admin.PatientSummary, error)
	ListAdmins(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	ClassificationEnabled(ctx context.Context) (bool, error)
	SetClassificationEnabled(ctx context.Context, enabled bool) error
	AssignDoctorToPatient(ctx context.Context, doctorID, patientID string) error
	CreateAdmin(ctx context.Context, in admin.CreateAdminInput) (*model.User, error)
}

// AdminHandler はアカウント管理とシステム設定のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// classificationStateResponse は分類トグルの状態レスポンス。
type classificationStateResponse struct {
	Enabled bool `json:"enabled"`
}

// classificationStateRequest は分類トグルの更新リクエストのボディ。
type classificationStateRequest struct {
	Enabled *bool `json:"enabled"`
}

// assignDoctorRequest は医師割り当てリクエストのボディ。
type assignDoctorRequest struct {
	DoctorID  string `json:"doctorId"`
	PatientID string `json:"patientId"`
}

// createAdminRequest は管理者作成リクエストのボディ。
type createAdminRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ListDoctors は医師アカウント一覧を返す。
// GET /api/admin/doctors
func (h *AdminHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.service.ListDoctors(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

// ListPatients は患者アカウント一覧を最新レポートの分類付きで返す。
// GET /api/admin/patients
func (h *AdminHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.ListPatients(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// ListAdmins は管理者アカウント一覧を返す。
// GET /api/admin/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.ListAdmins(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

// DeleteUser はアカウントと関連セッションを削除する。
// DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "アカウントを削除しました。"})
}

// GetClassificationState は分類トグルの現在の状態を返す。
// GET /api/admin/classification
func (h *AdminHandler) GetClassificationState(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.service.ClassificationEnabled(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classificationStateResponse{Enabled: enabled})
}

// SetClassificationState は分類トグルを更新する。
// PUT /api/admin/classification
func (h *AdminHandler) SetClassificationState(w http.ResponseWriter, r *http.Request) {
	var req classificationStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}
	if req.Enabled == nil {
		handleServiceError(w, model.NewValidationError("enabledを指定してください。"))
		return
	}

	if err := h.service.SetClassificationEnabled(r.Context(), *req.Enabled); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, classificationStateResponse{Enabled: *req.Enabled})
}

// AssignDoctor は患者に医師を割り当てる。
// POST /api/admin/assignments
func (h *AdminHandler) AssignDoctor(w http.ResponseWriter, r *http.Request) {
	var req assignDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}
	if req.DoctorID == "" || req.PatientID == "" {
		handleServiceError(w, model.NewValidationError("doctorIdとpatientIdを指定してください。"))
		return
	}

	if err := h.service.AssignDoctorToPatient(r.Context(), req.DoctorID, req.PatientID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "医師を割り当てました。"})
}

// CreateAdmin は管理者アカウントを作成する。既存の管理者宛てにはパスワードを再設定する。
// POST /api/admin/admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	created, err := h.service.CreateAdmin(r.Context(), admin.CreateAdminInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
