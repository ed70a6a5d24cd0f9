package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/neuroscan/internal/doctor"
	"github.com/hitoshi/neuroscan/internal/metrics"
	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/model"
	"github.com/hitoshi/neuroscan/internal/repository"
)

// PredictServiceInterface は予測ハンドラーが必要とするサービスインターフェース。
type PredictServiceInterface interface {
	Predict(ctx context.Context, patient *model.User, image []byte) (*model.Report, error)
}

// PatientAppointmentsInterface は患者の予約一覧を提供するサービスインターフェース。
type PatientAppointmentsInterface interface {
	PatientAppointments(ctx context.Context, patientID string, filter repository.AppointmentFilter) (*doctor.AppointmentsOverview, error)
}

// PatientHandler は患者向けのMRI分類と予約参照のHTTPハンドラー。
type PatientHandler struct {
	predict       PredictServiceInterface
	appointments  PatientAppointmentsInterface
	metrics       metrics.MetricsCollector
	maxImageBytes int64
}

// NewPatientHandler はPatientHandlerを生成する。metricsはnil可。
func NewPatientHandler(
	predict PredictServiceInterface,
	appointments PatientAppointmentsInterface,
	collector metrics.MetricsCollector,
	maxImageBytes int64,
) *PatientHandler {
	return &PatientHandler{
		predict:       predict,
		appointments:  appointments,
		metrics:       collector,
		maxImageBytes: maxImageBytes,
	}
}

// predictRequest はJSONボディでの予測リクエスト。
type predictRequest struct {
	// Image はbase64エンコードされた画像データ。
	Image string `json:"image"`
}

// Predict はMRI画像を分類しレポートを作成する。
// multipart/form-dataのimageフィールド、またはJSONボディのbase64文字列を受け付ける。
// POST /api/predict
func (h *PatientHandler) Predict(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingTokenError())
		return
	}

	image, err := h.readImage(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	start := time.Now()
	report, err := h.predict.Predict(r.Context(), user, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordClassification(string(report.Classification))
		h.metrics.RecordClassificationLatency(time.Since(start))
	}
	writeJSON(w, http.StatusCreated, report)
}

// readImage はContent-Typeに応じてリクエストから画像データを取り出す。
// サイズ上限を超えたリクエストはVALIDATION_ERRORになる。
func (h *PatientHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxImageBytes); err != nil {
			return nil, model.NewValidationError("画像のアップロードに失敗しました。サイズ上限を確認してください。")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, model.NewValidationError("imageフィールドが必要です。")
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			return nil, model.NewValidationError("画像の読み込みに失敗しました。")
		}
		return image, nil
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, model.NewValidationError("画像のアップロードに失敗しました。サイズ上限を確認してください。")
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, model.NewValidationError("imageはbase64形式で指定してください。")
	}
	return image, nil
}

// Appointments は患者自身の予約一覧と次回予約を返す。
// GET /api/patient/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD&status=a,b
func (h *PatientHandler) Appointments(w http.ResponseWriter, r *http.Request) {
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

	overview, err := h.appointments.PatientAppointments(r.Context(), user.ID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
