package migration

import "errors"

// ErrDuplicateFilename indicates two migration directories contain a file with the same name.
var ErrDuplicateFilename = errors.New("duplicate migration filename")

// ErrUnrecognisedFileType indicates a migration file does not have the script extension.
var ErrUnrecognisedFileType = errors.New("unrecognised migration file type")
