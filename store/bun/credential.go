package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/id"
)

// CreateCredential persists a new credential.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("weave/bun: create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID.
func (s *Store) GetCredential(ctx context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	m := new(credentialModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", credentialID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("weave/bun: get credential: %w", err)
	}
	return fromCredentialModel(m)
}

// UpdateCredential persists changes to an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update credential: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes a credential by ID.
func (s *Store) DeleteCredential(ctx context.Context, credentialID id.CredentialID) error {
	res, err := s.db.NewDelete().
		TableExpr("weave_credentials").
		Where("id = ?", credentialID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: delete credential: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// ListCredentials returns a user's credentials, oldest first.
func (s *Store) ListCredentials(ctx context.Context, userID string, opts credential.ListOpts) ([]*credential.Credential, error) {
	var models []credentialModel
	q := s.db.NewSelect().Model(&models).
		Where("user_id = ?", userID).
		Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("weave/bun: list credentials: %w", err)
	}

	credentials := make([]*credential.Credential, 0, len(models))
	for i := range models {
		c, convErr := fromCredentialModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: list credentials convert: %w", convErr)
		}
		credentials = append(credentials, c)
	}
	return credentials, nil
}
