// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, upstream, system
	Action   string // ユーザー向け対処方法
	cause    error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// WithCause は原因エラーを付与したコピーを返す。
// 原因はログにのみ出力し、レスポンスには含めない。
func (e *APIError) WithCause(err error) *APIError {
	c := *e
	c.cause = err
	return &c
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Kind はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorを含まない場合は空文字を返す。
func Kind(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsKind はエラーが指定コードのAPIErrorかどうかを判定する。
func IsKind(err error, code string) bool {
	return err != nil && Kind(err) == code
}

// NewValidationError は入力値不正エラーを生成する。
// fieldsには不正だったフィールド名を渡す。
func NewValidationError(reason string, fields ...string) *APIError {
	msg := fmt.Sprintf("入力内容が正しくありません: %s", reason)
	if len(fields) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(fields, ", "))
	}
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  msg,
		Category: "validation",
		Action:   "入力内容を確認してから再度お試しください。",
	}
}

// NewInvalidTradeURLError はトレードURLの形式エラーを生成する。
func NewInvalidTradeURLError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "SteamトレードURLの形式が正しくありません。",
		Category: "validation",
		Action:   "https://steamcommunity.com/tradeoffer/new/ で始まるトレードURLを入力してください。",
	}
}

// NewAlreadyListedError は同じアセットが既に出品済みの場合のエラーを生成する。
func NewAlreadyListedError(assetID string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("このアイテムは既に出品されています: %s", assetID),
		Category: "listing",
		Action:   "別のアイテムを選択するか、出品を取り下げてから再度お試しください。",
	}
}

// NewListingNotFoundError は出品が見つからない場合のエラーを生成する。
func NewListingNotFoundError(assetID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("ショーケースに該当するアイテムがありません: %s", assetID),
		Category: "listing",
		Action:   "ページを再読み込みして出品状況を確認してください。",
	}
}

// NewNotOwnerError は出品者以外が出品を操作しようとした場合のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このアイテムを取り下げる権限がありません。",
		Category: "listing",
		Action:   "自分が出品したアイテムのみ取り下げできます。",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "リクエストを検証できませんでした。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewResourceNotFoundError は外部APIが対象を見つけられなかった場合のエラーを生成する。
func NewResourceNotFoundError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%sが見つかりません。", what),
		Category: "upstream",
		Action:   "インスペクトリンクが正しいか確認してください。",
	}
}

// NewRateLimitedError は外部APIのレート制限に達した場合のエラーを生成する。
func NewRateLimitedError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  fmt.Sprintf("%sへのリクエストが多すぎます。", source),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewTooManyRequestsError はこのAPI自体のユーザー別レート制限に達した場合のエラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAccessDeniedError はSteamインベントリが非公開の場合のエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "Steamインベントリが非公開のため取得できません。",
		Category: "upstream",
		Action:   "Steamのプライバシー設定でインベントリを「公開」に変更してから再度お試しください。",
	}
}

// NewUpstreamUnavailableError は外部APIが利用できない場合のエラーを生成する。
func NewUpstreamUnavailableError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("%sに接続できませんでした。", source),
		Category: "upstream",
		Action:   "時間をおいて再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出力する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Steamでログインしてください。",
	}
}
