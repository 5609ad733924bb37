package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// ScriptExtension is the only file extension that is executed as a migration.
const ScriptExtension = ".cql"

// Migration is a single script file discovered in a migrations directory.
type Migration struct {
	Filename string // base name, unique across all directories of a run
	Path     string // full path to the file
	Content  []byte // raw file bytes
	Checksum string // SHA-256 hex digest of Content
}

// ComputeChecksum returns the SHA-256 hex digest of the given bytes.
func ComputeChecksum(content []byte) string {
	h := sha256.Sum256(content)

	return hex.EncodeToString(h[:])
}

// CheckType returns ErrUnrecognisedFileType unless the file has the script extension.
func (m *Migration) CheckType() error {
	if filepath.Ext(m.Filename) != ScriptExtension {
		return fmt.Errorf("%w: %s (expected %s)", ErrUnrecognisedFileType, m.Path, ScriptExtension)
	}

	return nil
}
