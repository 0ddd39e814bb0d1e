package cli

import "errors"

// Error variables for CLI operations.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrPathRequired       = errors.New("database path is required")
	ErrTooManyArgs        = errors.New("too many arguments")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNotEncrypted       = errors.New("command requires an encrypted database (use --encrypted)")
	ErrRepairConflict     = errors.New("--discard and --promote are mutually exclusive")
	ErrStagingInvalid     = errors.New("staging file does not decode; refusing to promote")
)
