// internal/server/auth.go
//
// 兩種身分：
//   - 顧客：POST /login 以帳號 + PIN 換取短效 JWT（HS256），之後以 Bearer token 存取自己的帳戶。
//   - 管理員：HTTP Basic Auth，密碼以 bcrypt 雜湊比對；通過後以 bank.WithAdmin 標記 context。
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
)

const tokenIssuer = "atm-ledger"

// ctxKey is a custom type for the context key to avoid collisions.
type ctxKey string

const accountKey ctxKey = "accountNumber"

var errInvalidToken = errors.New("invalid session token")

type sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// issue 產生 token；Subject 為帳號，ID 為隨機 uuid。
func (s *sessions) issue(number string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   number,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return tok, exp, err
}

// verify 回傳 token 內的帳號。
func (s *sessions) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// requireSession 驗證 Bearer token，且 token 的帳號必須與路徑 {number} 相同。
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeFail(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header.")
			return
		}
		number, err := s.sessions.verify(parts[1])
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "unauthorized", "Session expired or invalid. Please log in again.")
			return
		}
		if number != chi.URLParam(r, "number") {
			writeFail(w, http.StatusForbidden, "forbidden", "Session does not belong to this account.")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, number)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accountFromContext retrieves the authenticated account number.
func accountFromContext(ctx context.Context) string {
	n, _ := ctx.Value(accountKey).(string)
	return n
}

// requireAdmin 以 Basic Auth 驗證管理員。帳號與密碼錯誤回同一個訊息。
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.AdminUsername)) == 1
		passOK := ok && bcrypt.CompareHashAndPassword(s.opts.AdminPasswordHash, []byte(pass)) == nil
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="atm-admin", charset="UTF-8"`)
			s.log.WarnContext(r.Context(), "admin authentication failed", "remote", clientIP(r))
			writeFail(w, http.StatusUnauthorized, "unauthorized", "Administrator credentials required.")
			return
		}
		next.ServeHTTP(w, r.WithContext(bank.WithAdmin(r.Context())))
	})
}

// localOnly 未開啟 ALLOW_REMOTE 時，拒絕非 loopback 來源。
func (s *Server) localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote {
			ip := net.ParseIP(clientIP(r))
			if ip == nil || !ip.IsLoopback() {
				writeFail(w, http.StatusForbidden, "forbidden", "This service only accepts local connections.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
