package credential

import (
	"context"
	"fmt"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// Manager is the credential service: it encrypts on write, decrypts on
// read, and enforces that credentials are only visible to their owner.
type Manager struct {
	store  Store
	cipher *Cipher
}

// NewManager creates a credential manager.
func NewManager(store Store, cipher *Cipher) *Manager {
	return &Manager{store: store, cipher: cipher}
}

// Save encrypts and persists a new credential for a user.
func (m *Manager) Save(ctx context.Context, userID, title, value string) (*Credential, error) {
	encrypted, err := m.cipher.Encrypt(value)
	if err != nil {
		return nil, err
	}
	c := &Credential{
		Entity: weave.NewEntity(),
		ID:     id.NewCredentialID(),
		UserID: userID,
		Title:  title,
		Value:  encrypted,
	}
	if err := m.store.CreateCredential(ctx, c); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	return c, nil
}

// Value returns the decrypted value of a credential. A credential owned
// by another user is reported as not found rather than forbidden, so
// existence is not leaked across users.
func (m *Manager) Value(ctx context.Context, userID string, credentialID id.CredentialID) (string, error) {
	c, err := m.store.GetCredential(ctx, credentialID)
	if err != nil {
		return "", err
	}
	if c.UserID != userID {
		return "", fmt.Errorf("credential %s: %w", credentialID, weave.ErrCredentialNotFound)
	}
	return m.cipher.Decrypt(c.Value)
}

// List returns a user's credentials with ciphertext cleared.
func (m *Manager) List(ctx context.Context, userID string, opts ListOpts) ([]*Credential, error) {
	creds, err := m.store.ListCredentials(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		c.Value = ""
	}
	return creds, nil
}

// Delete removes a credential after an ownership check.
func (m *Manager) Delete(ctx context.Context, userID string, credentialID id.CredentialID) error {
	c, err := m.store.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return fmt.Errorf("credential %s: %w", credentialID, weave.ErrCredentialNotFound)
	}
	return m.store.DeleteCredential(ctx, credentialID)
}
