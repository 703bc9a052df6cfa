package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/id"
)

const credentialColumns = `id, user_id, title, value, created_at, updated_at`

// CreateCredential persists a new credential. The value column stores
// the ciphertext; decryption is the credential resolver's concern.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_credentials (id, user_id, title, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID.String(), c.UserID, c.Title, c.Value, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID.
func (s *Store) GetCredential(ctx context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM weave_credentials WHERE id = $1`,
		credentialID.String(),
	)

	c, err := scanCredential(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get credential: %w", err)
	}
	return c, nil
}

// UpdateCredential persists changes to an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_credentials SET
			user_id = $2, title = $3, value = $4, updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), c.UserID, c.Title, c.Value,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes a credential by ID.
func (s *Store) DeleteCredential(ctx context.Context, credentialID id.CredentialID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weave_credentials WHERE id = $1`, credentialID.String())
	if err != nil {
		return fmt.Errorf("weave/postgres: delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// ListCredentials returns a user's credentials, oldest first.
func (s *Store) ListCredentials(ctx context.Context, userID string, opts credential.ListOpts) ([]*credential.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM weave_credentials WHERE user_id = $1 ORDER BY created_at ASC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("weave/postgres: list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*credential.Credential
	for rows.Next() {
		c, scanErr := scanCredential(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("weave/postgres: scan credential row: %w", scanErr)
		}
		credentials = append(credentials, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate credential rows: %w", err)
	}
	return credentials, nil
}

// scanCredential scans a single credential row.
func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		c     credential.Credential
		idStr string
	)
	err := row.Scan(&idStr, &c.UserID, &c.Title, &c.Value, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseCredentialID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse credential id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	return &c, nil
}
