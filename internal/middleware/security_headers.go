package middleware

import "net/http"

// NewSecurityHeadersMiddleware はAPI向けのセキュリティヘッダーを付与するミドルウェアを返す。
// レスポンスはJSONか画像のみでHTMLを返さないため、CSPは全リソースを拒否する。
// 画像はフロントエンドの別オリジンから埋め込まれるため、CORPはcross-originとする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
