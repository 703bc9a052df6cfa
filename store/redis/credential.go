package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/id"
)

// credentialEntity is the storage model. The domain struct excludes
// Value from JSON so ciphertext never leaks through API responses; the
// store must persist it, so it carries its own serialization.
type credentialEntity struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCredentialEntity(c *credential.Credential) *credentialEntity {
	return &credentialEntity{
		ID:        c.ID.String(),
		UserID:    c.UserID,
		Title:     c.Title,
		Value:     c.Value,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCredentialEntity(e *credentialEntity) (*credential.Credential, error) {
	credID, err := id.ParseCredentialID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/redis: parse credential id: %w", err)
	}
	return &credential.Credential{
		Entity: weave.Entity{
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		ID:     credID,
		UserID: e.UserID,
		Title:  e.Title,
		Value:  e.Value,
	}, nil
}

// CreateCredential persists a new credential.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	cID := c.ID.String()
	if err := s.setEntity(ctx, credentialKey(cID), toCredentialEntity(c)); err != nil {
		return fmt.Errorf("weave/redis: create credential: %w", err)
	}
	if err := s.client.SAdd(ctx, credentialIDsKey, cID).Err(); err != nil {
		return fmt.Errorf("weave/redis: create credential index: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID.
func (s *Store) GetCredential(ctx context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	var e credentialEntity
	if err := s.getEntity(ctx, credentialKey(credentialID.String()), &e); err != nil {
		if err == errNotFound {
			return nil, weave.ErrCredentialNotFound
		}
		return nil, err
	}
	return fromCredentialEntity(&e)
}

// UpdateCredential persists changes to an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	key := credentialKey(c.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrCredentialNotFound
	}

	e := toCredentialEntity(c)
	e.UpdatedAt = now()
	return s.setEntity(ctx, key, e)
}

// DeleteCredential removes a credential by ID.
func (s *Store) DeleteCredential(ctx context.Context, credentialID id.CredentialID) error {
	cID := credentialID.String()
	key := credentialKey(cID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrCredentialNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, credentialIDsKey, cID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: delete credential: %w", err)
	}
	return nil
}

// ListCredentials returns a user's credentials, oldest first.
func (s *Store) ListCredentials(ctx context.Context, userID string, opts credential.ListOpts) ([]*credential.Credential, error) {
	ids, err := s.client.SMembers(ctx, credentialIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list credentials: %w", err)
	}

	result := make([]*credential.Credential, 0, len(ids))
	for _, cID := range ids {
		var e credentialEntity
		if getErr := s.getEntity(ctx, credentialKey(cID), &e); getErr != nil {
			continue
		}
		if e.UserID != userID {
			continue
		}
		c, convErr := fromCredentialEntity(&e)
		if convErr != nil {
			continue
		}
		result = append(result, c)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}
