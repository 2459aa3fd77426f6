package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Formhive tokens
	TokenPrefix = "fh_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: fh_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	// SHA256 hash for storage; the plaintext token is never persisted.
	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after "fh_" identify the token in listings.
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenManager manages API token lifecycle against Postgres.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// CreateToken creates a new API token and returns the plaintext exactly once.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name, description string, scopes []Scope, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode scopes: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}

	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, userID, tokenHash, tokenPrefix, name, description, string(scopesJSON), expiresAt, apiToken.CreatedAt).Scan(&apiToken.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a token and returns the stored record.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := tm.generator.HashToken(token)

	var t APIToken
	var scopesJSON string
	var description sql.NullString
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, description, scopes,
		       expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &description,
		&scopesJSON, &expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	t.Description = description.String
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if err := json.Unmarshal([]byte(scopesJSON), &t.Scopes); err != nil {
		t.Scopes = nil
	}

	if t.RevokedAt != nil {
		return nil, fmt.Errorf("token has been revoked")
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("token has expired")
	}

	// Best effort; a failed timestamp update must not fail the request.
	_, _ = tm.db.ExecContext(ctx,
		"UPDATE api_tokens SET last_used_at = $1 WHERE id = $2",
		time.Now().UTC(), t.ID,
	)

	return &t, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64, revokedBy int64, reason string) error {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`, time.Now().UTC(), revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("token %d not found or already revoked", tokenID)
	}
	return nil
}

// GetUser loads the user record a validated token belongs to.
func (tm *TokenManager) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	var email, fullName sql.NullString
	var lastLoginAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, is_bot, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&u.ID, &u.Username, &email, &fullName, &u.IsBot, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &lastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	u.Email = email.String
	u.FullName = fullName.String
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return &u, nil
}

// CleanupExpiredTokens revokes tokens whose expiry has passed and returns
// how many were affected. The cleanup cron calls this.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoke_reason = 'expired'
		WHERE expires_at IS NOT NULL AND expires_at < $1 AND revoked_at IS NULL
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	return result.RowsAffected()
}
