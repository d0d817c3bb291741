package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/models"
)

var (
	ErrMissingToken   = errors.New("missing auth token")
	ErrInvalidToken   = errors.New("invalid auth token")
	ErrInvalidSubject = errors.New("token subject is not a valid user id")
	ErrUnknownUser    = errors.New("token subject does not match a user")
)

// AuthError wraps every failure to turn a token into a user.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// Claims is what a verified token says about its holder.
type Claims struct {
	UserID uuid.UUID
	Name   string
	Guest  bool
}

// Authenticator signs and verifies EdDSA tokens.
type Authenticator struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	ttl     time.Duration
}

// NewAuthenticator generates a fresh key pair. Tokens issued by a previous process
// become invalid on restart. ttl of zero issues tokens without expiry.
func NewAuthenticator(ttl time.Duration) (*Authenticator, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Authenticator{private: private, public: public, ttl: ttl}, nil
}

// LoadAuthenticator reads a raw ed25519 key pair from disk.
func LoadAuthenticator(privatePath, publicPath string, ttl time.Duration) (*Authenticator, error) {
	privateKey, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKey, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKey) != ed25519.PrivateKeySize || len(publicKey) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 key files have the wrong size")
	}
	return &Authenticator{private: privateKey, public: publicKey, ttl: ttl}, nil
}

// Issue signs a token with sub = userID.
func (a *Authenticator) Issue(userID uuid.UUID, name string, guest bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"name": name,
		"iat":  time.Now().Unix(),
	}
	if guest {
		claims["guest"] = true
	}
	if a.ttl > 0 {
		claims["exp"] = time.Now().Add(a.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.private)
}

// Verify checks the signature and expiry and returns the claims.
func (a *Authenticator) Verify(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, &AuthError{Err: ErrMissingToken}
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.public, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil || !t.Valid {
		return Claims{}, &AuthError{Err: fmt.Errorf("%w: %v", ErrInvalidToken, err)}
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, &AuthError{Err: ErrInvalidToken}
	}
	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, &AuthError{Err: ErrInvalidSubject}
	}
	name, _ := mc["name"].(string)
	guest, _ := mc["guest"].(bool)
	return Claims{UserID: userID, Name: name, Guest: guest}, nil
}

// ProfileStore supplies stored profiles. It returns models.ErrUserNotFound for
// unknown ids.
type ProfileStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Resolver turns a token into the public profile used in broadcasts.
type Resolver struct {
	auth     *Authenticator
	profiles ProfileStore
}

// NewResolver builds a resolver. profiles may be nil, in which case the profile
// is built from the token claims alone.
func NewResolver(a *Authenticator, profiles ProfileStore) *Resolver {
	return &Resolver{auth: a, profiles: profiles}
}

func (r *Resolver) Authenticator() *Authenticator { return r.auth }

func (r *Resolver) Resolve(ctx context.Context, token string) (models.UserRef, error) {
	claims, err := r.auth.Verify(token)
	if err != nil {
		return models.UserRef{}, err
	}

	fallback := models.UserRef{
		ID:       claims.UserID,
		Username: claims.Name,
		Rating:   models.DefaultRating,
		Guest:    claims.Guest,
	}
	if fallback.Username == "" {
		fallback.Username = "player-" + claims.UserID.String()[:8]
	}
	if r.profiles == nil {
		return fallback, nil
	}

	u, err := r.profiles.GetUserByID(ctx, claims.UserID)
	switch {
	case err == nil:
		return u.Ref(), nil
	case errors.Is(err, models.ErrUserNotFound) && claims.Guest:
		return fallback, nil
	case errors.Is(err, models.ErrUserNotFound):
		return models.UserRef{}, &AuthError{Err: ErrUnknownUser}
	default:
		return models.UserRef{}, fmt.Errorf("load profile: %w", err)
	}
}
