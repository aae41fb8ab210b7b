package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `id, email, COALESCE(password_hash, ''), full_name, COALESCE(oauth_id, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.OAuthID, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, oauth_id)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING `+userColumns,
		user.ID, user.Email, nullString(user.PasswordHash), user.FullName, nullString(user.OAuthID),
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *PostgresStore) GetUserByOAuthID(ctx context.Context, oauthID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE oauth_id = $1`, oauthID))
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, COALESCE(u.password_hash, ''), u.full_name, COALESCE(u.oauth_id, ''), u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

const documentSelect = `
	SELECT d.id, d.title, d.created_by, u.full_name, d.current_version, d.status, d.visibility,
		COALESCE((SELECT string_agg(e.user_id, ',' ORDER BY e.added_at) FROM document_editors e WHERE e.document_id = d.id), ''),
		d.created_at, d.updated_at
	FROM documents d
	JOIN users u ON u.id = d.created_by
`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var doc Document
	var editors string
	err := row.Scan(&doc.ID, &doc.Title, &doc.CreatedBy, &doc.CreatorName, &doc.CurrentVersion, &doc.Status, &doc.Visibility, &editors, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Editors = splitList(editors)
	return doc, nil
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	return insertDocument(ctx, s.db, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDocument(ctx context.Context, db execer, doc Document) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (id, title, created_by, status, visibility)
		VALUES ($1, $2, $3, $4, $5)
	`, doc.ID, doc.Title, doc.CreatedBy, doc.Status, doc.Visibility)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, documentSelect+` WHERE d.id = $1`, documentID))
}

// ListDocumentsForUser returns documents the user owns or edits plus every
// public or org-visible document, most recently updated first.
func (s *PostgresStore) ListDocumentsForUser(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+`
		WHERE d.created_by = $1
			OR d.visibility IN ('public', 'org')
			OR EXISTS (SELECT 1 FROM document_editors e WHERE e.document_id = d.id AND e.user_id = $1)
		ORDER BY d.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

func (s *PostgresStore) UpdateDocumentTitle(ctx context.Context, documentID, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE documents SET title = $2, updated_at = NOW() WHERE id = $1`, documentID, title)
	if err != nil {
		return fmt.Errorf("update document title: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateDocumentVisibility(ctx context.Context, documentID, visibility string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE documents SET visibility = $2, updated_at = NOW() WHERE id = $1`, documentID, visibility)
	if err != nil {
		return fmt.Errorf("update document visibility: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) AddEditor(ctx context.Context, documentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_editors (document_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (document_id, user_id) DO NOTHING
	`, documentID, userID)
	if err != nil {
		return fmt.Errorf("add editor: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveEditor(ctx context.Context, documentID, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_editors WHERE document_id = $1 AND user_id = $2`, documentID, userID)
	if err != nil {
		return fmt.Errorf("remove editor: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) ListEditors(ctx context.Context, documentID string) ([]Editor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.full_name, e.added_at
		FROM document_editors e
		JOIN users u ON u.id = e.user_id
		WHERE e.document_id = $1
		ORDER BY e.added_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list editors: %w", err)
	}
	defer rows.Close()

	editors := make([]Editor, 0)
	for rows.Next() {
		var editor Editor
		if err := rows.Scan(&editor.UserID, &editor.Email, &editor.FullName, &editor.AddedAt); err != nil {
			return nil, fmt.Errorf("scan editor: %w", err)
		}
		editors = append(editors, editor)
	}
	return editors, rows.Err()
}

// ---------------------------------------------------------------------------
// Versions
// ---------------------------------------------------------------------------

// AppendVersion writes version ExpectedVersion+1 and advances the document in
// one transaction. The document row is locked for the duration so appends on
// the same document serialize; a stale ExpectedVersion yields ErrVersionConflict.
func (s *PostgresStore) AppendVersion(ctx context.Context, in AppendVersionInput) (Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Version{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := appendVersionTx(ctx, tx, in)
	if err != nil {
		return Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit append tx: %w", err)
	}
	return version, nil
}

// CreateDocument inserts doc together with its first version. Either both
// rows exist afterwards or neither does.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document, first AppendVersionInput) (Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Version{}, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertDocument(ctx, tx, doc); err != nil {
		return Version{}, err
	}
	first.DocumentID = doc.ID
	first.ExpectedVersion = 0
	version, err := appendVersionTx(ctx, tx, first)
	if err != nil {
		return Version{}, err
	}
	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit create tx: %w", err)
	}
	return version, nil
}

func appendVersionTx(ctx context.Context, tx *sql.Tx, in AppendVersionInput) (Version, error) {
	var current int
	var status string
	err := tx.QueryRowContext(ctx, `SELECT current_version, status FROM documents WHERE id = $1 FOR UPDATE`, in.DocumentID).Scan(&current, &status)
	if err != nil {
		return Version{}, err
	}
	if status == StatusArchived {
		return Version{}, ErrDocumentArchived
	}
	if current != in.ExpectedVersion {
		return Version{}, ErrVersionConflict
	}

	next := current + 1
	version := Version{
		DocumentID:    in.DocumentID,
		Version:       next,
		Action:        in.Action,
		Payload:       in.Payload,
		ContentHash:   in.ContentHash,
		CommitHash:    in.CommitHash,
		SignatureName: in.SignatureName,
		AuthorID:      in.AuthorID,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (document_id, version, action, payload, content_hash, commit_hash, signature_name, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, in.DocumentID, next, in.Action, in.Payload, in.ContentHash, in.CommitHash, in.SignatureName, in.AuthorID).Scan(&version.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Version{}, ErrVersionConflict
		}
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET current_version = $2,
			status = COALESCE(NULLIF($3, ''), status),
			search_text = $4,
			updated_at = NOW()
		WHERE id = $1 AND current_version = $5
	`, in.DocumentID, next, in.NewStatus, in.SearchText, current)
	if err != nil {
		return Version{}, fmt.Errorf("advance document: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return Version{}, fmt.Errorf("advance document: %w", err)
	} else if affected == 0 {
		return Version{}, ErrVersionConflict
	}
	return version, nil
}

const versionColumns = `v.document_id, v.version, v.action, v.content_hash, COALESCE(v.tx_hash, ''), v.commit_hash, v.signature_name, v.author_id, u.full_name, v.created_at`

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions v
		JOIN users u ON u.id = v.author_id
		WHERE v.document_id = $1
		ORDER BY v.version ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]Version, 0)
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.DocumentID, &v.Version, &v.Action, &v.ContentHash, &v.TxHash, &v.CommitHash, &v.SignatureName, &v.AuthorID, &v.AuthorName, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, number int) (Version, error) {
	var v Version
	err := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`, v.payload
		FROM document_versions v
		JOIN users u ON u.id = v.author_id
		WHERE v.document_id = $1 AND v.version = $2
	`, documentID, number).Scan(&v.DocumentID, &v.Version, &v.Action, &v.ContentHash, &v.TxHash, &v.CommitHash, &v.SignatureName, &v.AuthorID, &v.AuthorName, &v.CreatedAt, &v.Payload)
	if err != nil {
		return Version{}, err
	}
	return v, nil
}

// AttachVersionTx records the chain transaction for a version. The tx hash is
// write-once.
func (s *PostgresStore) AttachVersionTx(ctx context.Context, documentID string, number int, txHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE document_versions SET tx_hash = $3
		WHERE document_id = $1 AND version = $2 AND tx_hash IS NULL
	`, documentID, number, txHash)
	if err != nil {
		return fmt.Errorf("attach version tx: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach version tx: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetVersion(ctx, documentID, number); err != nil {
			return err
		}
		return ErrAlreadyAnchored
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
