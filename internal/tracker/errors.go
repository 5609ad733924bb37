package tracker

import "errors"

// ErrMigrationNotFound indicates no record exists for the given migration filename.
var ErrMigrationNotFound = errors.New("migration not found in schema_migrations")

// ErrChecksumMismatch indicates a previously applied file no longer matches its recorded checksum.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// ErrTableCreation indicates the schema_migrations table could not be created.
var ErrTableCreation = errors.New("creating schema_migrations table")

// ErrAlreadyRecorded indicates a record for the filename already exists and was left untouched.
var ErrAlreadyRecorded = errors.New("migration already recorded")
