package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once
	`^[A-Za-z][A-Za-z0-9_]{0,47}$`,
)

// ValidateKeyspace checks that name is usable as an unquoted keyspace identifier.
func ValidateKeyspace(name string) error {
	if !keyspacePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidKeyspace, name)
	}

	return nil
}

// LockName derives the lock name guarding migrations of a keyspace.
func LockName(keyspace string) string {
	return "schema_migration:" + strings.ToLower(keyspace)
}

// KeyspaceExists reports whether the keyspace is present in the cluster schema.
func KeyspaceExists(ctx context.Context, session *gocql.Session, keyspace string) (bool, error) {
	var name string

	err := session.Query(
		`SELECT keyspace_name FROM system_schema.keyspaces WHERE keyspace_name = ?`,
		strings.ToLower(keyspace),
	).WithContext(ctx).Scan(&name)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("checking if keyspace %s exists: %w", keyspace, err)
	}

	return true, nil
}

// DropKeyspace drops the keyspace and everything in it. Dropping a keyspace
// that does not exist is not an error.
func DropKeyspace(ctx context.Context, session *gocql.Session, keyspace string) error {
	if err := ValidateKeyspace(keyspace); err != nil {
		return err
	}

	err := session.Query(`DROP KEYSPACE IF EXISTS ` + keyspace).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("dropping keyspace %s: %w", keyspace, err)
	}

	return nil
}

// ReplicationLiteral renders replication options as a CQL map literal with
// the class first and remaining keys sorted.
func ReplicationLiteral(opts map[string]string) string {
	keys := make([]string, 0, len(opts))

	for k := range opts {
		if k != "class" {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	if _, ok := opts["class"]; ok {
		keys = append([]string{"class"}, keys...)
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteLiteral(k) + ": " + quoteLiteral(opts[k])
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
