package ewf

import (
	"testing"

	"github.com/caseforge/ewfgo/internal/format"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsV2Signature(t *testing.T) {
	storage := NewMemoryStorage()
	buf := make([]byte, format.FileHeaderV1Size)
	copy(buf, format.SignatureV2[:])
	require.NoError(t, storage.WriteAt(0, buf))

	_, err := Open(storage)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestOpenRejectsTruncatedChain(t *testing.T) {
	storage := NewMemoryStorage()
	fh := format.NewFileHeaderV1()
	require.NoError(t, storage.WriteAt(0, fh.Marshal()))

	// A section descriptor whose next points far past the end of the
	// (otherwise empty) medium.
	desc := format.NewSectionDescriptor(format.SectionSectors)
	desc.Next = 1_000_000
	desc.Size = format.SectionDescriptorSize
	buf := desc.Marshal()
	desc.Checksum = format.Adler32(buf[:format.SectionDescriptorChecksumOffset])
	buf = desc.Marshal()
	require.NoError(t, storage.WriteAt(int64(format.FileHeaderV1Size), buf))

	_, err := Open(storage)
	require.ErrorIs(t, err, ErrTruncatedChain)
}

func TestOpenRejectsMissingVolumeSection(t *testing.T) {
	storage := NewMemoryStorage()
	fh := format.NewFileHeaderV1()
	require.NoError(t, storage.WriteAt(0, fh.Marshal()))

	doneOffset := uint64(format.FileHeaderV1Size)
	desc := format.NewSectionDescriptor(format.SectionDone)
	desc.Size = format.SectionDescriptorSize
	desc.Next = doneOffset
	buf := desc.Marshal()
	desc.Checksum = format.Adler32(buf[:format.SectionDescriptorChecksumOffset])
	buf = desc.Marshal()
	require.NoError(t, storage.WriteAt(int64(doneOffset), buf))

	_, err := Open(storage)
	require.ErrorIs(t, err, ErrNoVolumeInfo)
}

func TestOpenPermissiveModeToleratesChecksumMismatch(t *testing.T) {
	storage := NewMemoryStorage()
	w, err := NewWriter(storage)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Flip a byte inside the volume descriptor's first reserved field (bytes
	// 40-51, after media_flags and before compression_level): this breaks
	// its checksum without disturbing any field the reader interprets.
	buf := storage.Bytes()
	corruptAt := len(buf) - format.SectionDescriptorSize - format.VolumeDescriptorSize + 45
	buf[corruptAt] ^= 0xff
	require.NoError(t, storage.WriteAt(int64(corruptAt), buf[corruptAt:corruptAt+1]))

	_, err = Open(storage) // permissive by default: logs a warning, does not fail
	require.NoError(t, err)

	_, err = Open(storage, WithStrictChecksums())
	require.ErrorIs(t, err, ErrChecksumMismatch)
}
