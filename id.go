package weave

import "github.com/xraph/weave/id"

// ID is the primary identifier type for all Weave entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
