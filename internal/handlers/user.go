// internal/handlers/user.go
package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/database"
	"github.com/piloto-life/Gomoku/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type tokenResponse struct {
	User  models.UserRef `json:"user"`
	Token string         `json:"token"`
}

// CreateUser registers an account and logs it in.
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts require a database, use /user/guest")
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if req.Username == "" {
		req.Username, _, _ = strings.Cut(req.Email, "@")
	}

	u := &models.User{Email: req.Email, Password: req.Password, Username: req.Username}
	if err := s.users.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Errorf("create user: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	s.logger.WithField("user_id", u.ID).Info("user created")
	s.issue(w, http.StatusCreated, u)
}

// Login exchanges credentials for a token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts require a database, use /user/guest")
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Errorf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.issue(w, http.StatusOK, u)
}

// Guest issues a token for a throwaway account. A guest row is stored when a
// database is configured.
func (s *Server) Guest(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u := &models.User{
		ID:       uuid.New(),
		Username: strings.TrimSpace(req.Username),
		IsGuest:  true,
		Rating:   models.DefaultRating,
	}
	if u.Username == "" {
		u.Username = "Guest-" + u.ID.String()[:6]
	}
	if s.users != nil {
		if err := s.users.CreateUser(r.Context(), u); err != nil {
			s.logger.Errorf("create guest: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create guest")
			return
		}
	}
	s.issue(w, http.StatusCreated, u)
}

func (s *Server) issue(w http.ResponseWriter, status int, u *models.User) {
	token, err := s.resolver.Authenticator().Issue(u.ID, u.Username, u.IsGuest)
	if err != nil {
		s.logger.Errorf("issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, tokenResponse{User: u.Ref(), Token: token})
}
