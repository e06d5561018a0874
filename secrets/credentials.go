package secrets

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-slack-dispatch/core"
)

const (
	FieldSigningSecret = "secret"
	FieldBotToken      = "token"
	FieldAPIKey        = "api_key"
)

// Credentials are the Slack app credentials resolved at startup.
type Credentials struct {
	SigningSecret string
	BotToken      string
}

// CredentialRefs names the secret ids holding each credential.
type CredentialRefs struct {
	SigningSecretID string
	BotTokenID      string
}

// LoadCredentials resolves both Slack credentials. Any missing or malformed
// payload is an error; callers treat it as fatal.
func LoadCredentials(ctx context.Context, store core.SecretStore, refs CredentialRefs) (Credentials, error) {
	secret, err := ResolveField(ctx, store, refs.SigningSecretID, FieldSigningSecret)
	if err != nil {
		return Credentials{}, err
	}
	token, err := ResolveField(ctx, store, refs.BotTokenID, FieldBotToken)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{SigningSecret: secret, BotToken: token}, nil
}

// ResolveField reads the JSON payload stored under id and returns the string
// value of field.
func ResolveField(ctx context.Context, store core.SecretStore, id, field string) (string, error) {
	if store == nil {
		return "", secretBadInput("secrets: secret store is required", nil)
	}
	payload, err := store.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", secretUnavailable(err, "secrets: secret payload is malformed", id)
	}
	value, _ := decoded[field].(string)
	if strings.TrimSpace(value) == "" {
		return "", secretUnavailable(nil, "secrets: secret payload field is missing", id)
	}
	return value, nil
}
