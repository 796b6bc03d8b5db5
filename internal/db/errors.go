package db

import "errors"

// Sentinel errors for index operations.
var (
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrSessionClosed = errors.New("db: session already released")
)

// Op names used as error context. Redis ops are the command names,
// other backends use the closest equivalent.
const (
	OpConnect     = "CONNECT"
	OpPing        = "PING"
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"

	OpCreateTable   = "CREATE TABLE"
	OpTableInfo     = "SELECT atttypmod"
	OpSelect        = "SELECT"
	OpCreateColl    = "CreateCollection"
	OpCollInfo      = "GetCollectionInfo"
	OpCreateFieldIx = "CreateFieldIndex"
	OpQuery         = "Query"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
