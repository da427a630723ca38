package api

import (
	"errors"
	"net/http"

	"bothub/internal/auth"
)

// handleHealth 返回存活状态，供负载均衡探活。
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToken 签发访问令牌。
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{
			Code: "AUTH_DISABLED", Message: "authentication is not configured",
		}})
		return
	}
	var req auth.TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := s.auth.Authenticate(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		code := "INVALID_CREDENTIALS"
		switch {
		case errors.Is(err, auth.ErrDisabled):
			status, code = http.StatusServiceUnavailable, "AUTH_DISABLED"
		case errors.Is(err, auth.ErrUnsupportedGrant):
			status, code = http.StatusBadRequest, "UNSUPPORTED_GRANT"
		case errors.Is(err, auth.ErrSubjectRevoked):
			status, code = http.StatusForbidden, "SUBJECT_DISABLED"
		}
		writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
