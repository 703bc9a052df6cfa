// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// It uses pgxpool for connection pooling and SELECT FOR UPDATE SKIP
// LOCKED for atomic task dequeue, so multiple worker pools can share
// one database safely.
//
// Graph payloads (nodes, connections) and execution data live in JSONB
// columns; pgx handles the encoding transparently.
package postgres
