// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidOTP, model.ErrCodeOTPExpired:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeMissingToken,
		model.ErrCodeInvalidToken, model.ErrCodeTokenExpired, model.ErrCodeSessionRevoked:
		return http.StatusUnauthorized
	case model.ErrCodeRoleMismatch, model.ErrCodeVerificationRequired, model.ErrCodeInsufficientRole:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateEmail, model.ErrCodeAlreadyVerified:
		return http.StatusConflict
	case model.ErrCodeNotificationFailed, model.ErrCodeClassifierFailed:
		return http.StatusBadGateway
	case model.ErrCodeClassifierDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// invalidBodyError はリクエストボディのデコード失敗時のエラーを返す。
func invalidBodyError() *model.APIError {
	return model.NewValidationError("リクエストボディの解析に失敗しました。")
}
