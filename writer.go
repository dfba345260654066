package ewf

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/caseforge/ewfgo/internal/format"
)

const (
	defaultChunkSize      = 32 * 1024
	defaultBytesPerSector = 512
	maxEntriesPerTable    = 30000
)

// WriterOption configures an EWFWriter at construction time.
type WriterOption func(*writerConfig)

type writerConfig struct {
	caseInfo         CaseInfo
	hasCaseInfo      bool
	withDigest       bool
	compressionLevel int
	chunkSize        int
	progress         ProgressFunc
}

// WithCaseInfo attaches examiner/case attribution, emitted as a "header"
// section before the first chunk table.
func WithCaseInfo(info CaseInfo) WriterOption {
	return func(c *writerConfig) {
		c.caseInfo = info
		c.hasCaseInfo = true
	}
}

// WithDigest enables running MD5/SHA1 digests over every byte written,
// emitted as a "digest" section just before the volume section on Close.
func WithDigest() WriterOption {
	return func(c *writerConfig) { c.withDigest = true }
}

// WithCompressionLevel overrides the zlib compression level used for chunk
// payloads (zlib.DefaultCompression, zlib.BestCompression, or
// zlib.NoCompression). Recorded in the volume descriptor's
// compression_level field.
func WithCompressionLevel(level int) WriterOption {
	return func(c *writerConfig) { c.compressionLevel = level }
}

// WithChunkSize overrides the default 32 KiB chunk size. Must be a
// multiple of the 512-byte sector size, or NewWriter returns
// ErrInvalidChunkSize.
func WithChunkSize(n int) WriterOption {
	return func(c *writerConfig) { c.chunkSize = n }
}

// WithProgress attaches a best-effort progress callback, invoked each time
// a full table is flushed on rollover. The final table flushed by Close is
// not reported.
func WithProgress(p ProgressFunc) WriterOption {
	return func(c *writerConfig) { c.progress = p }
}

// EWFWriter produces a well-formed EWFv1 container from a sequential byte
// stream. A single instance must be driven by exactly one producer; see
// SPEC_FULL.md §4.7 for the layout strategy this ports from
// EWFFileWriter in the original source.
type EWFWriter struct {
	storage Storage

	chunkSize        int
	compressionLevel int
	progress         ProgressFunc

	currentOffset uint64
	baseOffset    uint64
	chunkID       uint64
	buffer        []byte
	table         []uint32
	tableCount    int
	tablePending  bool

	lastSection    format.SectionDescriptor
	lastSectionOff uint64
	haveLast       bool

	withDigest bool
	md5sum     hash.Hash
	sha1sum    hash.Hash

	closed bool
}

// NewWriter writes the file header (and, if requested, a header section)
// and prepares the first chunk table.
func NewWriter(storage Storage, opts ...WriterOption) (*EWFWriter, error) {
	cfg := writerConfig{
		compressionLevel: zlib.DefaultCompression,
		chunkSize:        defaultChunkSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.chunkSize%defaultBytesPerSector != 0 {
		return nil, fmt.Errorf("ewf: chunk size %d: %w", cfg.chunkSize, ErrInvalidChunkSize)
	}

	w := &EWFWriter{
		storage:          storage,
		chunkSize:        cfg.chunkSize,
		compressionLevel: cfg.compressionLevel,
		progress:         cfg.progress,
		withDigest:       cfg.withDigest,
	}
	if w.withDigest {
		w.md5sum = md5.New()
		w.sha1sum = sha1.New()
	}

	fileHeader := format.NewFileHeaderV1()
	if err := w.storage.WriteAt(0, fileHeader.Marshal()); err != nil {
		return nil, fmt.Errorf("ewf: write file header: %w", err)
	}
	w.currentOffset = uint64(format.FileHeaderV1Size)

	if cfg.hasCaseInfo {
		if err := w.writeHeaderSection(cfg.caseInfo); err != nil {
			return nil, err
		}
	}

	if err := w.startNewTable(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *EWFWriter) writeHeaderSection(info CaseInfo) error {
	payload, err := buildHeaderPayload(info)
	if err != nil {
		return err
	}
	return w.emitSection(format.SectionHeader, payload)
}

// emitSection writes a section descriptor followed by payload at
// currentOffset, patching the previous section's next/checksum, and
// advances currentOffset past both.
func (w *EWFWriter) emitSection(sectionType string, payload []byte) error {
	offset := w.currentOffset
	desc := format.NewSectionDescriptor(sectionType)
	desc.Size = uint64(format.SectionDescriptorSize + len(payload))

	if err := w.storage.WriteAt(int64(offset), desc.Marshal()); err != nil {
		return fmt.Errorf("ewf: write %s section descriptor: %w", sectionType, err)
	}
	if len(payload) > 0 {
		if err := w.storage.WriteAt(int64(offset)+int64(format.SectionDescriptorSize), payload); err != nil {
			return fmt.Errorf("ewf: write %s section payload: %w", sectionType, err)
		}
	}

	if err := w.patchPreviousNext(offset); err != nil {
		return err
	}
	w.lastSection = desc
	w.lastSectionOff = offset
	w.haveLast = true

	w.currentOffset = offset + uint64(format.SectionDescriptorSize) + uint64(len(payload))
	return nil
}

// patchPreviousNext finalizes the previously emitted descriptor's next,
// size and checksum fields now that the following section's offset is
// known. size is every byte between this section's own offset and the
// next one - its descriptor plus whatever payload or chunk data follows it
// - the same "next - obj_offset" rule UpdateChecksum uses in the original
// writer, not just descriptorSize+len(payload).
func (w *EWFWriter) patchPreviousNext(nextOffset uint64) error {
	if !w.haveLast {
		return nil
	}
	w.lastSection.Next = nextOffset
	w.lastSection.Size = nextOffset - w.lastSectionOff
	buf := w.lastSection.Marshal()
	w.lastSection.Checksum = format.Adler32(buf[:format.SectionDescriptorChecksumOffset])
	buf = w.lastSection.Marshal()
	if err := w.storage.WriteAt(int64(w.lastSectionOff), buf); err != nil {
		return fmt.Errorf("ewf: patch section descriptor at %d: %w", w.lastSectionOff, err)
	}
	return nil
}

// startNewTable resets table bookkeeping for a fresh chunk table. The
// "sectors" section descriptor that precedes it is not written here: it is
// deferred to ensureTableOpen so a table that never receives a chunk (a
// rollover landing on the very last chunk of the stream) leaves no trailing
// empty sectors/table section pair behind.
func (w *EWFWriter) startNewTable() error {
	w.table = nil
	w.tableCount++
	w.tablePending = true
	return nil
}

// ensureTableOpen emits the current table's "sectors" section descriptor
// on first use, setting baseOffset to the offset its chunks actually start
// at. A no-op once the table is already open.
func (w *EWFWriter) ensureTableOpen() error {
	if !w.tablePending {
		return nil
	}
	if err := w.emitSection(format.SectionSectors, nil); err != nil {
		return err
	}
	w.baseOffset = w.currentOffset
	w.tablePending = false
	return nil
}

// Write appends data to the internal buffer and flushes complete chunks,
// compressing each and choosing raw storage when compression does not
// shrink the chunk. Implements io.Writer.
func (w *EWFWriter) Write(data []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("ewf: write after close")
	}
	if w.withDigest {
		w.md5sum.Write(data)
		w.sha1sum.Write(data)
	}
	return len(data), w.absorb(data)
}

// absorb is the shared chunk-emitting path for Write and for the final
// pad-to-chunk-size flush in Close, which must run after closed is set.
// Padding bytes are not fed to the running digest: WithDigest covers
// exactly the caller's input stream, not the zero-fill of its last chunk.
func (w *EWFWriter) absorb(data []byte) error {
	w.buffer = append(w.buffer, data...)
	bufOffset := 0

	for len(w.buffer)-bufOffset >= w.chunkSize {
		if err := w.ensureTableOpen(); err != nil {
			return err
		}
		block := w.buffer[bufOffset : bufOffset+w.chunkSize]

		var compBuf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&compBuf, w.compressionLevel)
		if err != nil {
			return fmt.Errorf("ewf: zlib writer: %w", err)
		}
		if _, err := zw.Write(block); err != nil {
			return fmt.Errorf("ewf: compress chunk %d: %w", w.chunkID, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("ewf: compress chunk %d: %w", w.chunkID, err)
		}
		cdata := compBuf.Bytes()

		relOffset := uint32(w.currentOffset - w.baseOffset)

		var toWrite []byte
		if len(cdata) > len(block) {
			w.table = append(w.table, relOffset)
			toWrite = block
		} else {
			w.table = append(w.table, relOffset|format.TableEntryCompressedFlag)
			toWrite = cdata
		}

		if err := w.storage.WriteAt(int64(w.currentOffset), toWrite); err != nil {
			return fmt.Errorf("ewf: write chunk %d: %w", w.chunkID, err)
		}
		w.currentOffset += uint64(len(toWrite))
		bufOffset += w.chunkSize
		w.chunkID++

		if len(w.table) >= maxEntriesPerTable {
			w.progress.report("flushing EWF table %d", w.tableCount)
			if err := w.flushTable(); err != nil {
				return err
			}
			if err := w.startNewTable(); err != nil {
				return err
			}
		}
	}

	w.buffer = append([]byte(nil), w.buffer[bufOffset:]...)
	return nil
}

// flushTable emits the "table" section descriptor, table header, and
// packed entry array for the chunks accumulated since the last
// startNewTable. A no-op when no chunk ever landed in the current table -
// e.g. a rollover that happens to coincide with the last chunk of the
// stream, whose startNewTable left the table empty with no sectors section
// ever opened for it.
func (w *EWFWriter) flushTable() error {
	if len(w.table) == 0 {
		return nil
	}
	th := format.TableHeader{
		NumberOfEntries: uint64(len(w.table)),
		BaseOffset:      w.baseOffset,
	}
	thBuf := th.Marshal()
	th.Checksum = format.Adler32(thBuf[:format.TableHeaderChecksumOffset])
	thBuf = th.Marshal()

	entryBuf := make([]byte, len(w.table)*4)
	for i, e := range w.table {
		binary.LittleEndian.PutUint32(entryBuf[i*4:i*4+4], e)
	}

	payload := append(thBuf, entryBuf...)
	return w.emitSection(format.SectionTable, payload)
}

// writeDigestSection emits the finalized MD5/SHA1 sums as a "digest"
// section, positioned after the last table and before the volume section,
// matching the original EWF layout.
func (w *EWFWriter) writeDigestSection() error {
	var rec format.DigestRecord
	copy(rec.MD5[:], w.md5sum.Sum(nil))
	copy(rec.SHA1[:], w.sha1sum.Sum(nil))

	buf := rec.Marshal()
	rec.Checksum = format.Adler32(buf[:format.DigestChecksumOffset])
	buf = rec.Marshal()

	return w.emitSection(format.SectionDigest, buf)
}

func (w *EWFWriter) writeVolumeSection() error {
	vol := format.VolumeDescriptor{
		MediaType:       format.MediaTypeFixed,
		NumberOfChunks:  uint32(w.chunkID),
		SectorsPerChunk: uint32(w.chunkSize / defaultBytesPerSector),
		BytesPerSector:  defaultBytesPerSector,
	}
	vol.NumberOfSectors = uint64(vol.NumberOfChunks) * uint64(vol.SectorsPerChunk)

	buf := vol.Marshal()
	vol.Checksum = format.Adler32(buf[:format.VolumeDescriptorChecksumOffset])
	buf = vol.Marshal()

	return w.emitSection(format.SectionVolume, buf)
}

// Close flushes any buffered partial chunk (zero-padded), the final
// table, an optional digest section, the volume section, and the
// terminal self-referencing "done" section. Idempotent: a second call is
// a no-op.
func (w *EWFWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buffer) > 0 {
		pad := make([]byte, w.chunkSize-len(w.buffer))
		if err := w.absorb(pad); err != nil {
			return err
		}
	}

	if err := w.flushTable(); err != nil {
		return err
	}

	if w.withDigest {
		if err := w.writeDigestSection(); err != nil {
			return err
		}
	}

	if err := w.writeVolumeSection(); err != nil {
		return err
	}

	// Terminal done section: next points at its own offset, the sentinel
	// that ends the chain.
	doneOffset := w.currentOffset
	desc := format.NewSectionDescriptor(format.SectionDone)
	desc.Size = uint64(format.SectionDescriptorSize)
	desc.Next = doneOffset

	buf := desc.Marshal()
	desc.Checksum = format.Adler32(buf[:format.SectionDescriptorChecksumOffset])
	buf = desc.Marshal()
	if err := w.storage.WriteAt(int64(doneOffset), buf); err != nil {
		return fmt.Errorf("ewf: write done section: %w", err)
	}
	if err := w.patchPreviousNext(doneOffset); err != nil {
		return err
	}

	if closer, ok := w.storage.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
