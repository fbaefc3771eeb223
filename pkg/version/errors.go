package version

import "errors"

var (
	// ErrInvalidArgument indicates a malformed scope, version id or argument
	ErrInvalidArgument = errors.New("version: invalid argument")

	// ErrNotFound indicates a missing version or an empty scope
	ErrNotFound = errors.New("version: not found")

	// ErrStorageUnavailable indicates the medium rejected a read or write
	ErrStorageUnavailable = errors.New("version: storage unavailable")

	// ErrConsistencyFault indicates the current pointer resolves to a
	// missing or corrupt record
	ErrConsistencyFault = errors.New("version: consistency fault")
)
