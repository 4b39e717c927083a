package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/hitoshi/skinshowcase/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteUnauthorized は401の統一レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// StatusForCode はエラーコードをHTTPステータスコードに変換する。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeConflict:
		return http.StatusConflict
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden, model.ErrCodeAccessDenied:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はサービス層のエラーを統一フォーマットで書き込む。
// APIErrorを含まないエラーは内部エラーとしてログに記録し、詳細は返さない。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("trace_id", TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteInternalServerError(w)
		return
	}

	status := StatusForCode(apiErr.Code)
	if status >= http.StatusInternalServerError || apiErr.Unwrap() != nil {
		slog.WarnContext(r.Context(), "request failed",
			slog.String("trace_id", TraceIDFromContext(r.Context())),
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorResponse(w, status, apiErr)
}
