// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層（middleware）組裝。
// 與 handler.go 分離：
//   - handler.go 定義「如何處理請求」
//   - router.go 定義「請求如何被導向」、經過哪些驗證
//
// 路由總覽（皆在 /api/v1 下）：
//
//	POST   /login                               帳號 + PIN 換 token（限流）
//	POST   /accounts                            開戶（限流）
//	GET    /accounts/{number}                   查詢帳戶（不留紀錄）
//	POST   /accounts/{number}/balance-inquiry   查詢餘額（記錄 BALANCE_INQUIRY）
//	POST   /accounts/{number}/deposit
//	POST   /accounts/{number}/withdraw
//	POST   /accounts/{number}/transfer
//	POST   /accounts/{number}/pin
//	GET    /accounts/{number}/transactions
//	GET    /admin/accounts                      以下皆需管理員 Basic Auth
//	DELETE /admin/accounts/{number}
//	PUT    /admin/accounts/{number}/pin
//	PUT    /admin/accounts/{number}/holder
//	GET    /admin/deleted
//	POST   /admin/deleted/{number}/restore
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router 建立並回傳整個 HTTP 處理鏈。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// localOnly 必須最先執行，且不能搭配 middleware.RealIP（標頭可偽造）。
	r.Use(s.localOnly)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 健康檢查：可供監控使用。
	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/login", s.login)
			r.Post("/accounts", s.createAccount)
		})

		r.Route("/accounts/{number}", func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/", s.getAccount)
			r.Post("/balance-inquiry", s.balanceInquiry)
			r.Post("/deposit", s.deposit)
			r.Post("/withdraw", s.withdraw)
			r.Post("/transfer", s.transfer)
			r.Post("/pin", s.changePin)
			r.Get("/transactions", s.history)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/accounts", s.adminListAccounts)
			r.Delete("/accounts/{number}", s.adminDeleteAccount)
			r.Put("/accounts/{number}/pin", s.adminResetPin)
			r.Put("/accounts/{number}/holder", s.adminRenameHolder)
			r.Get("/deleted", s.adminListDeleted)
			r.Post("/deleted/{number}/restore", s.adminRestore)
		})
	})

	return r
}

// requestLogger 每個請求記錄一行；不記錄 body（含 PIN）。
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
