package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/database"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/hub"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	guests  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]*models.User)}
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Rating == 0 {
		u.Rating = models.DefaultRating
	}
	if u.IsGuest {
		f.guests++
		return nil
	}
	email := strings.ToLower(u.Email)
	if _, ok := f.byEmail[email]; ok {
		return database.ErrEmailTaken
	}
	stored := *u
	f.byEmail[email] = &stored
	return nil
}

func (f *fakeUsers) AuthenticateUser(_ context.Context, email, password string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok || u.Password != password {
		return nil, database.ErrInvalidCredentials
	}
	out := *u
	return &out, nil
}

type testEnv struct {
	srv  *Server
	hub  *hub.Hub
	auth *auth.Authenticator
	http *httptest.Server
}

func newTestEnv(t *testing.T, users UserStore) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a, err := auth.NewAuthenticator(time.Hour)
	require.NoError(t, err)

	games := game.NewGameStore(game.NewMemoryRepository(), game.DefaultBoardSize, logger)
	h := hub.New(games, nil, nil, hub.Options{}, logger)
	srv := NewServer(h, auth.NewResolver(a, nil), users, Options{}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		h.CloseAll("test finished")
		ts.Close()
	})
	return &testEnv{srv: srv, hub: h, auth: a, http: ts}
}

func (e *testEnv) token(t *testing.T, name string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	tok, err := e.auth.Issue(id, name, false)
	require.NoError(t, err)
	return id, tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return res, out
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/lobby/ws?token=q", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "q", extractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	r.Header.Set("Authorization", "Bearer h")
	r.AddCookie(&http.Cookie{Name: authCookie, Value: "c"})
	assert.Equal(t, "h", extractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/lobby/ws", nil)
	r.AddCookie(&http.Cookie{Name: authCookie, Value: "c"})
	assert.Equal(t, "c", extractToken(r))

	assert.Empty(t, extractToken(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestGuestWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, nil)

	res, body := env.do(t, http.MethodPost, "/user/guest", "", map[string]string{"username": "visitor"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	claims, err := env.auth.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.Guest)
	assert.Equal(t, "visitor", claims.Name)

	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == authCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)

	res, _ = env.do(t, http.MethodPost, "/user/create", "", map[string]string{"email": "a@b.c", "password": "secret"})
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestCreateUserAndLogin(t *testing.T) {
	users := newFakeUsers()
	env := newTestEnv(t, users)
	creds := map[string]string{"email": "alice@example.com", "password": "hunter22"}

	res, body := env.do(t, http.MethodPost, "/user/create", "", creds)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"], "username defaults to the email local part")

	res, _ = env.do(t, http.MethodPost, "/user/create", "", creds)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, body = env.do(t, http.MethodPost, "/user/login", "", creds)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["token"])

	res, _ = env.do(t, http.MethodPost, "/user/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = env.do(t, http.MethodPost, "/user/create", "", map[string]string{"email": "not-an-email", "password": "hunter22"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = env.do(t, http.MethodPost, "/user/guest", "", nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, 1, users.guests)
}

func TestLobbyViewsRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/lobby/stats", "/lobby/queue", "/lobby/players", "/lobby/games"} {
		res, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
		assert.NotEmpty(t, body["error"], path)

		res, _ = env.do(t, http.MethodGet, path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
	}
}

func TestLobbyViewsStartEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.token(t, "viewer")

	res, body := env.do(t, http.MethodGet, "/lobby/stats", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(0), body["online_players"])
	assert.Equal(t, float64(0), body["waiting_queue_size"])
	assert.Equal(t, float64(0), body["open_rooms"])

	_, body = env.do(t, http.MethodGet, "/lobby/queue", token, nil)
	assert.Equal(t, float64(0), body["size"])
	assert.Equal(t, float64(0), body["estimated_wait_time"])
	assert.Empty(t, body["queue"])

	_, body = env.do(t, http.MethodGet, "/lobby/players", token, nil)
	assert.Equal(t, float64(0), body["count"])

	res, err := http.Get(env.http.URL + "/ping")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWaitingGameOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	blackID, blackTok := env.token(t, "black")
	whiteID, whiteTok := env.token(t, "white")

	res, _ := env.do(t, http.MethodPost, "/games", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := env.do(t, http.MethodPost, "/games", blackTok, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	gameID := body["id"].(string)
	assert.Equal(t, "waiting", body["status"])

	_, body = env.do(t, http.MethodGet, "/lobby/games", whiteTok, nil)
	listed := body["games"].([]any)
	require.Len(t, listed, 1)
	assert.Equal(t, gameID, listed[0].(map[string]any)["id"])
	assert.NotContains(t, listed[0].(map[string]any), "moves")

	res, _ = env.do(t, http.MethodPost, "/games/"+gameID+"/join", blackTok, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "creator cannot take the second seat")

	res, body = env.do(t, http.MethodPost, "/games/"+gameID+"/join", whiteTok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "white", body["color"])

	res, body = env.do(t, http.MethodGet, "/games/"+gameID, "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "active", body["status"])
	players := body["players"].(map[string]any)
	assert.Equal(t, blackID.String(), players["black"].(map[string]any)["id"])
	assert.Equal(t, whiteID.String(), players["white"].(map[string]any)["id"])

	res, _ = env.do(t, http.MethodPost, "/games", blackTok, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "a player in an active game cannot open another")

	res, _ = env.do(t, http.MethodGet, "/games/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = env.do(t, http.MethodGet, "/games/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
