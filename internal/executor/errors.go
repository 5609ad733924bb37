package executor

import "errors"

// ErrExecutionFailed indicates a statement of a migration failed to execute.
var ErrExecutionFailed = errors.New("migration execution failed")

// ErrKeyspaceMissing indicates the target keyspace does not exist and no
// bootstrap file was supplied to create it.
var ErrKeyspaceMissing = errors.New("keyspace does not exist and no bootstrap file was found")
