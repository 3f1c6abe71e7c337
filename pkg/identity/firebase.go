package identity

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/noah-isme/level-portal-api/pkg/config"
)

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier validates Firebase ID tokens (Google sign-in).
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier initialises the Firebase Admin SDK. It returns
// ErrNotInitialized when no credentials are configured.
func NewFirebaseVerifier(ctx context.Context, cfg config.IdentityConfig) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	switch {
	case cfg.FirebaseCredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	case cfg.FirebaseCredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	default:
		return nil, ErrNotInitialized
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify checks the token signature, audience and expiry with Firebase.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	if v == nil || v.client == nil {
		return nil, ErrNotInitialized
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	email, _ := token.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("id token carries no email claim")
	}
	name, _ := token.Claims["name"].(string)

	return &ExternalIdentity{
		Subject:     token.UID,
		Email:       strings.ToLower(email),
		DisplayName: name,
	}, nil
}
