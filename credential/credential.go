// Package credential stores per-user secrets (API keys, bot tokens)
// encrypted at rest and hands decrypted values to node executors after
// an ownership check.
package credential

import (
	"context"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// Credential is a named secret owned by one user. Value holds the
// encrypted ciphertext; plaintext never touches the store.
type Credential struct {
	weave.Entity

	ID     id.CredentialID `json:"id"`
	UserID string          `json:"user_id"`
	Title  string          `json:"title"`
	Value  string          `json:"-"`
}

// ListOpts controls pagination for credential list queries.
type ListOpts struct {
	// Limit is the maximum number of credentials to return. Zero means no limit.
	Limit int
	// Offset is the number of credentials to skip.
	Offset int
}

// Store defines the persistence contract for credentials.
type Store interface {
	// CreateCredential persists a new credential.
	CreateCredential(ctx context.Context, c *Credential) error

	// GetCredential retrieves a credential by ID.
	GetCredential(ctx context.Context, credentialID id.CredentialID) (*Credential, error)

	// UpdateCredential persists changes to an existing credential.
	UpdateCredential(ctx context.Context, c *Credential) error

	// DeleteCredential removes a credential by ID.
	DeleteCredential(ctx context.Context, credentialID id.CredentialID) error

	// ListCredentials returns a user's credentials.
	ListCredentials(ctx context.Context, userID string, opts ListOpts) ([]*Credential, error)
}
