package pwsfile

import "errors"

// Container errors
var (
	// ErrInvalidPassphrase indicates the passphrase does not match the file's verifier.
	ErrInvalidPassphrase = errors.New("pwsfile: invalid passphrase")

	// ErrIntegrity indicates a V3 file whose trailer or HMAC does not verify.
	ErrIntegrity = errors.New("pwsfile: integrity check failed")

	// ErrUnknownFormat indicates input too short to hold any known header.
	ErrUnknownFormat = errors.New("pwsfile: unknown file format")

	// ErrEmptyPassphrase indicates an empty passphrase.
	ErrEmptyPassphrase = errors.New("pwsfile: passphrase cannot be empty")

	// ErrIterations indicates a V3 iteration count below the minimum.
	ErrIterations = errors.New("pwsfile: iteration count below minimum")
)
