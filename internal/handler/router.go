package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/neuroscan/internal/metrics"
	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	AuthService    AuthServiceInterface
	AdminService   AdminServiceInterface
	DoctorService  DoctorServiceInterface
	PredictService PredictServiceInterface
	Appointments   PatientAppointmentsInterface

	// 監視
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// アップロード上限（バイト）
	MaxImageBytes int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → (認証 → レート制限)
//
// 認証ルート（/api/auth/*）は認証ゲートの外に置き、IPキーのレート制限のみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics)
	adminHandler := NewAdminHandler(deps.AdminService)
	doctorHandler := NewDoctorHandler(deps.DoctorService)
	patientHandler := NewPatientHandler(deps.PredictService, deps.Appointments, deps.Metrics, deps.MaxImageBytes)

	// --- 認証不要のルート ---

	r.Get("/health", healthCheck)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/signup", authHandler.Signup)
		r.With(deps.RateLimiter.VerifyMiddleware()).Post("/verify", authHandler.VerifyEmail)
		r.With(deps.RateLimiter.VerifyMiddleware()).Post("/resend", authHandler.ResendOTP)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/validate-session", authHandler.ValidateSession)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: 認証ゲート → ユーザーキーのレート制限
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.SessionValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.Get("/doctors", adminHandler.ListDoctors)
			r.Get("/patients", adminHandler.ListPatients)
			r.Get("/admins", adminHandler.ListAdmins)
			r.Post("/admins", adminHandler.CreateAdmin)
			r.Delete("/users/{id}", adminHandler.DeleteUser)
			r.Get("/classification", adminHandler.GetClassificationState)
			r.Put("/classification", adminHandler.SetClassificationState)
			r.Post("/assignments", adminHandler.AssignDoctor)
		})

		// 医師
		r.Route("/api/doctor", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleDoctor))

			r.Get("/patients", doctorHandler.AssignedPatients)
			r.Get("/patients/categorized", doctorHandler.PatientsByCategory)
			r.Get("/patients/{id}/reports", doctorHandler.PatientReports)
			r.Put("/reports/{id}", doctorHandler.UpdateReport)
			r.Get("/appointments", doctorHandler.Appointments)
			r.Put("/appointments/{id}/status", doctorHandler.UpdateAppointmentStatus)
		})

		// 患者
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RolePatient))

			r.Post("/api/predict", patientHandler.Predict)
			r.Get("/api/patient/appointments", patientHandler.Appointments)
		})
	})

	return r
}

// healthCheck は稼働確認エンドポイント。
// GET /health
func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
