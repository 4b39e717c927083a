package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/rs/xid"
)

// TraceIDHeader はトレースIDを受け渡すHTTPヘッダー名。
const TraceIDHeader = "X-Trace-Id"

var traceIDContextKey = contextKey("trace_id")

// validTraceID は外部から受け取るトレースIDとして許容する形式。
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// NewTraceIDMiddleware はリクエストごとのトレースIDを決定し、コンテキストとレスポンスヘッダーに設定する。
// 受信したX-Trace-Idが妥当な形式ならそれを使い、なければxidで生成する。
func NewTraceIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if !validTraceID.MatchString(traceID) {
				traceID = xid.New().String()
			}

			w.Header().Set(TraceIDHeader, traceID)
			ctx := context.WithValue(r.Context(), traceIDContextKey, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TraceIDFromContext はコンテキストのトレースIDを返す。未設定の場合は空文字を返す。
func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDContextKey).(string)
	return traceID
}
