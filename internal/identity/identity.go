// Package identity resolves bearer tokens to the caller's identity and keeps
// track of the identity attached to long-lived connections.
package identity

import (
	"context"
	"errors"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/chachabrian/parkit-backend/pkg/utils"
)

var (
	ErrMissingToken = errors.New("authorization token required")
	ErrInvalidToken = errors.New("invalid token")
)

const (
	ProviderJWT      = "jwt"
	ProviderFirebase = "firebase"
)

type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier accepts HS256 tokens issued by this API.
type JWTVerifier struct {
	Secret string
}

func (v JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := utils.ValidateToken(v.Secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email, Provider: ProviderJWT}, nil
}

// IDTokenVerifier is the part of the Firebase auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier accepts Firebase Authentication ID tokens, the tokens the
// web client signs in with.
type FirebaseVerifier struct {
	Client IDTokenVerifier
}

func (v FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	tok, err := v.Client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	email, _ := tok.Claims["email"].(string)
	return &Identity{UserID: tok.UID, Email: email, Provider: ProviderFirebase}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var errs []error
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrInvalidToken
	}
	return nil, errors.Join(errs...)
}
