package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import "errors"

// ErrNonTerminatedStatement indicates the script ended in the middle of a statement.
var ErrNonTerminatedStatement = errors.New("non-terminated statement")
