// Package mongo implements store.Store on MongoDB using the official
// driver. Atomic task claim uses FindOneAndUpdate so concurrent worker
// pools never double-deliver; run idempotency and schedule name
// uniqueness are enforced by unique indexes created in Migrate.
//
// The caller owns the *mongo.Client lifecycle; pass a database handle
// through the constructor and call Migrate once at startup.
package mongo
