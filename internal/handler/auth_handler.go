package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/neuroscan/internal/auth"
	"github.com/hitoshi/neuroscan/internal/metrics"
	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error)
	VerifyEmail(ctx context.Context, id, otp, deviceInfo string) (*auth.AuthResult, error)
	ResendOTP(ctx context.Context, id string) error
	Login(ctx context.Context, email, password, requestedRole, deviceInfo string) (*auth.AuthResult, error)
	Logout(ctx context.Context, sessionToken string) error
	ValidateSession(ctx context.Context, sessionToken string) (*model.User, error)
}

// AuthHandler は認証ライフサイクルのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnil可。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: collector,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`

	// 患者ロール用。dateOfBirthはYYYY-MM-DD形式。
	DateOfBirth    string   `json:"dateOfBirth,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	MedicalHistory []string `json:"medicalHistory,omitempty"`
}

// verifyRequest はメール検証リクエストのボディ。
type verifyRequest struct {
	ID  string `json:"id"`
	OTP string `json:"otp"`
}

// resendRequest は確認コード再送リクエストのボディ。
type resendRequest struct {
	ID string `json:"id"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// messageResponse は本文を持たない成功レスポンスのボディ。
type messageResponse struct {
	Message string `json:"message"`
}

// Signup は検証待ちレコードを作成し確認コードを送信する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	in := auth.SignupInput{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		Role:           req.Role,
		Gender:         req.Gender,
		MedicalHistory: req.MedicalHistory,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			handleServiceError(w, model.NewValidationError("dateOfBirthはYYYY-MM-DD形式で指定してください。"))
			return
		}
		in.DateOfBirth = dob
	}

	result, err := h.service.Signup(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignup(req.Role)
		h.metrics.RecordOTPDispatch()
	}
	writeJSON(w, http.StatusCreated, result)
}

// VerifyEmail は確認コードを検証しアカウントを有効化する。
// POST /api/auth/verify
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), req.ID, req.OTP, r.UserAgent())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordVerification("failure")
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordVerification("success")
	}
	writeJSON(w, http.StatusOK, result)
}

// ResendOTP は確認コードを再生成して送信する。
// POST /api/auth/resend
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordOTPDispatch()
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "確認コードを再送しました。"})
}

// Login は資格情報を検証しトークンとセッションを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidBodyError())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.Role, r.UserAgent())
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLogin("failure")
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin("success")
	}
	writeJSON(w, http.StatusOK, result)
}

// Logout はセッションを無効化する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)

	if err := h.service.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "ログアウトしました。"})
}

// validateSessionResponse はセッション確認レスポンスのボディ。
type validateSessionResponse struct {
	Valid bool        `json:"valid"`
	User  *model.User `json:"user"`
}

// ValidateSession はトークンとセッションの有効性を確認し、対応するユーザーを返す。
// フロントエンドが起動時のセッション復元に使用する。
// GET /api/auth/validate-session
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.ValidateSession(r.Context(), middleware.BearerToken(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateSessionResponse{Valid: true, User: user.Public()})
}
