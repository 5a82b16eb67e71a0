package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
)

// RefreshToken is the stored form of an opaque refresh token. Only the hash
// is persisted.
type RefreshToken struct {
	TokenHash string
	ActorID   string
	CreatedAt string
	ExpiresAt string
	RevokedAt string
}

// HashToken returns a stable SHA-256 hex digest for the provided token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertRefreshToken(ctx context.Context, tx *sql.Tx, t RefreshToken) error {
	if t.TokenHash == "" || t.ActorID == "" {
		return errors.New("token_hash and actor_id required")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO refresh_tokens(token_hash,actor_id,created_at,expires_at) VALUES (?,?,?,?)`,
		t.TokenHash, t.ActorID, t.CreatedAt, t.ExpiresAt)
	return err
}

func (r Repo) GetRefreshToken(ctx context.Context, tx *sql.Tx, hash string) (RefreshToken, error) {
	var t RefreshToken
	var revoked sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT token_hash,actor_id,created_at,expires_at,revoked_at FROM refresh_tokens WHERE token_hash=?`, hash).
		Scan(&t.TokenHash, &t.ActorID, &t.CreatedAt, &t.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.RevokedAt = revoked.String
	return t, err
}

// RevokeRefreshToken marks a live token revoked. Revoking an unknown or
// already revoked token reports ErrNotFound.
func (r Repo) RevokeRefreshToken(ctx context.Context, tx *sql.Tx, hash, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL`, now, hash)
	return affectedOne(res, err)
}

func (r Repo) RevokeActorRefreshTokens(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at=? WHERE actor_id=? AND revoked_at IS NULL`, now, actorID)
	return err
}
