package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/id"
)

// CreateCredential persists a new credential.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)
	if _, err := s.db.Collection(colCredentials).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("weave/mongo: create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID.
func (s *Store) GetCredential(ctx context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	var m credentialModel
	err := s.db.Collection(colCredentials).
		FindOne(ctx, bson.M{"_id": credentialID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get credential: %w", err)
	}
	return fromCredentialModel(&m)
}

// UpdateCredential persists changes to an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	m := toCredentialModel(c)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colCredentials).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("weave/mongo: update credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes a credential by ID.
func (s *Store) DeleteCredential(ctx context.Context, credentialID id.CredentialID) error {
	res, err := s.db.Collection(colCredentials).
		DeleteOne(ctx, bson.M{"_id": credentialID.String()})
	if err != nil {
		return fmt.Errorf("weave/mongo: delete credential: %w", err)
	}
	if res.DeletedCount == 0 {
		return weave.ErrCredentialNotFound
	}
	return nil
}

// ListCredentials returns a user's credentials, oldest first.
func (s *Store) ListCredentials(ctx context.Context, userID string, opts credential.ListOpts) ([]*credential.Credential, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colCredentials).
		Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var models []credentialModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list credentials decode: %w", err)
	}

	credentials := make([]*credential.Credential, 0, len(models))
	for i := range models {
		c, convErr := fromCredentialModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: list credentials convert: %w", convErr)
		}
		credentials = append(credentials, c)
	}
	return credentials, nil
}
