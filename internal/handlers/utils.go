package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/models"
)

const authCookie = "auth_token"

// extractToken reads the credential from ?token=, an Authorization bearer header
// or the auth_token cookie, in that order.
func extractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	if c, err := r.Cookie(authCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// authenticate resolves the request's token and writes 401 on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (models.UserRef, bool) {
	profile, err := s.resolver.Resolve(r.Context(), extractToken(r))
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			writeError(w, http.StatusUnauthorized, authErr.Error())
			return models.UserRef{}, false
		}
		s.logger.Errorf("resolve token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return models.UserRef{}, false
	}
	return profile, true
}
