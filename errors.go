package ewf

import "errors"

// Sentinel errors for the taxonomy in spec §7. Wrap with fmt.Errorf("...:
// %w", ...) for context; callers use errors.Is against these.
var (
	// ErrBadSignature means the file header magic matched neither the
	// EWFv1 nor the EWFv2 signature.
	ErrBadSignature = errors.New("ewf: bad signature")

	// ErrUnsupportedVersion means the EWFv2 signature was recognized but
	// this package only reads and writes EWFv1.
	ErrUnsupportedVersion = errors.New("ewf: unsupported version (v2)")

	// ErrTruncatedChain means a section's next pointer advanced past the
	// end of the medium before a self-referential "done" section was
	// reached.
	ErrTruncatedChain = errors.New("ewf: truncated section chain")

	// ErrChecksumMismatch means a record's stored Adler-32 did not match
	// its computed checksum. Only returned in strict mode; permissive
	// mode logs a warning and continues.
	ErrChecksumMismatch = errors.New("ewf: checksum mismatch")

	// ErrMalformedTable means a table's declared entry count extends past
	// the end of the medium, or an entry decodes to an out-of-range
	// offset.
	ErrMalformedTable = errors.New("ewf: malformed table")

	// ErrNoVolumeInfo means the section chain was walked to completion
	// without finding a disk/volume section.
	ErrNoVolumeInfo = errors.New("ewf: no volume section found")

	// ErrInvalidChunkSize means the configured chunk size is not a
	// multiple of the sector size, which would make sectors_per_chunk
	// round incorrectly in the volume descriptor.
	ErrInvalidChunkSize = errors.New("ewf: chunk size must be a multiple of bytes per sector")
)
