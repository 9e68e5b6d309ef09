package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/storage"
)

const TimestampSkew = 30 * time.Second

// SessionAuth verifies the signed-request scheme: the client signs
// method+path+body+timestamp with HMAC-SHA256 over its session secret.
// The secret lives in the store (Redis, or in-memory in -dev).
func SessionAuth(sessionRepo *repository.SessionRepository, store storage.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-Id")
			if sessionID == "" {
				sessionID = r.URL.Query().Get("session_id")
			}
			timestampStr := r.Header.Get("X-Timestamp")
			if timestampStr == "" {
				timestampStr = r.URL.Query().Get("timestamp")
			}
			signature := r.Header.Get("X-Signature")
			if signature == "" {
				signature = r.URL.Query().Get("signature")
			}
			if sessionID == "" || timestampStr == "" || signature == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ts, err := strconv.ParseInt(timestampStr, 10, 64)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			reqTime := time.Unix(ts, 0)
			if time.Since(reqTime) > TimestampSkew || time.Until(reqTime) > TimestampSkew {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var body []byte
			if r.Body != nil {
				body, err = io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			// The client signs multipart requests with an empty body.
			bodyForSignature := string(body)
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				bodyForSignature = ""
			}
			secretB64, err := store.GetSessionSecret(r.Context(), sessionID)
			if err != nil || secretB64 == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			secret, err := base64.StdEncoding.DecodeString(secretB64)
			if err != nil || len(secret) != 32 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			payload := r.Method + r.URL.Path + bodyForSignature + timestampStr
			mac := hmac.New(sha256.New, secret)
			mac.Write([]byte(payload))
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(signature), []byte(expected)) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			session, err := sessionRepo.GetByID(r.Context(), sessionID)
			if err != nil || session == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := sessionRepo.UpdateLastSeen(r.Context(), sessionID, time.Now().UTC()); err != nil {
				logger.Errorf("session middleware UpdateLastSeen session_id=%s: %v", MaskSessionID(sessionID), err)
			}
			ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateSignedQuery checks the same HMAC scheme for endpoints that carry
// credentials in the query (the call socket). Body is empty by definition.
func ValidateSignedQuery(sessionRepo *repository.SessionRepository, store storage.Store) func(ctx context.Context, sessionID, timestamp, signature, path string) (string, error) {
	return func(ctx context.Context, sessionID, timestamp, signature, path string) (string, error) {
		if sessionID == "" || timestamp == "" || signature == "" {
			return "", ErrUnauthorized
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return "", ErrUnauthorized
		}
		reqTime := time.Unix(ts, 0)
		if time.Since(reqTime) > TimestampSkew || time.Until(reqTime) > TimestampSkew {
			return "", ErrUnauthorized
		}
		secretB64, err := store.GetSessionSecret(ctx, sessionID)
		if err != nil || secretB64 == "" {
			return "", ErrUnauthorized
		}
		secret, err := base64.StdEncoding.DecodeString(secretB64)
		if err != nil || len(secret) != 32 {
			return "", ErrUnauthorized
		}
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(http.MethodGet + path + timestamp))
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			return "", ErrUnauthorized
		}
		session, err := sessionRepo.GetByID(ctx, sessionID)
		if err != nil || session == nil {
			return "", ErrUnauthorized
		}
		return session.UserID, nil
	}
}

// ErrUnauthorized is returned by ValidateSignedQuery on any check failure.
var ErrUnauthorized = errors.New("unauthorized")

var SessionIDKey contextKey = "session_id"

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}
