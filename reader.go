package ewf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/caseforge/ewfgo/internal/format"
)

// ReaderOption configures an EWFReader at open time.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	cacheSize       int
	strictChecksums bool
}

// WithCacheSize overrides the chunk cache's capacity. A capacity of 0
// disables caching entirely; see the cache-transparency property in
// SPEC_FULL.md §8.
func WithCacheSize(n int) ReaderOption {
	return func(c *readerConfig) { c.cacheSize = n }
}

// WithStrictChecksums makes a section descriptor, table header, or volume
// header whose Adler-32 does not match its payload a fatal open-time error
// (ErrChecksumMismatch) instead of a logged warning.
func WithStrictChecksums() ReaderOption {
	return func(c *readerConfig) { c.strictChecksums = true }
}

// EWFReader exposes the logical byte stream stored in an EWFv1 container,
// built over open-time section-chain traversal. Not safe for concurrent
// use; callers sharing a reader must serialize access themselves, the way
// laenix-ewfgo's EWFImage relies on its own fileMutex.
type EWFReader struct {
	storage Storage
	strict  bool

	chunkSize  int
	size       int64
	volumeInfo VolumeInfo
	caseInfo   CaseInfo
	digest     Digest
	hasDigest  bool

	index *sortedTableIndex
	cache *chunkCache

	closer func() error
}

// Open walks storage's section chain and returns a reader positioned to
// serve ReadAt calls. See SPEC_FULL.md §4.5 for the traversal algorithm.
func Open(storage Storage, opts ...ReaderOption) (*EWFReader, error) {
	cfg := readerConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &EWFReader{
		storage:   storage,
		strict:    cfg.strictChecksums,
		chunkSize: 32 * 1024,
		index:     &sortedTableIndex{},
		cache:     newChunkCache(cfg.cacheSize),
	}

	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *EWFReader) open() error {
	fileHeaderBuf, err := r.storage.ReadAt(0, format.FileHeaderV1Size)
	if err != nil {
		return fmt.Errorf("ewf: read file header: %w", err)
	}
	if len(fileHeaderBuf) < 8 {
		return fmt.Errorf("ewf: %w", ErrBadSignature)
	}
	switch {
	case bytes.Equal(fileHeaderBuf[:8], format.SignatureV1[:]):
		// proceed below
	case bytes.Equal(fileHeaderBuf[:8], format.SignatureV2[:]):
		return fmt.Errorf("ewf: %w", ErrUnsupportedVersion)
	default:
		return fmt.Errorf("ewf: %w", ErrBadSignature)
	}
	if _, err := format.UnmarshalFileHeaderV1(fileHeaderBuf); err != nil {
		return fmt.Errorf("ewf: %w", ErrBadSignature)
	}

	mediumSize, err := r.storage.Size()
	if err != nil {
		return fmt.Errorf("ewf: stat storage: %w", err)
	}

	var currentChunkOffset uint64
	var sawVolume bool
	var header2Info CaseInfo
	offset := uint64(format.FileHeaderV1Size)
	steps := 0

	for {
		steps++
		if steps > 1_000_000 {
			return fmt.Errorf("ewf: %w", ErrTruncatedChain)
		}
		if int64(offset)+int64(format.SectionDescriptorSize) > mediumSize {
			return fmt.Errorf("ewf: %w", ErrTruncatedChain)
		}

		descBuf, err := r.storage.ReadAt(int64(offset), format.SectionDescriptorSize)
		if err != nil {
			return fmt.Errorf("ewf: read section descriptor at %d: %w", offset, err)
		}
		desc, err := format.UnmarshalSectionDescriptor(descBuf)
		if err != nil {
			return fmt.Errorf("ewf: section descriptor at %d: %w", offset, err)
		}
		if err := r.checkChecksum(descBuf[:format.SectionDescriptorChecksumOffset], desc.Checksum, "section descriptor"); err != nil {
			return err
		}

		payloadOffset := offset + uint64(format.SectionDescriptorSize)
		payloadSize := int64(0)
		if desc.Size > uint64(format.SectionDescriptorSize) {
			payloadSize = int64(desc.Size) - int64(format.SectionDescriptorSize)
		}

		switch desc.TypeString() {
		case format.SectionHeader:
			buf, err := r.storage.ReadAt(int64(payloadOffset), int(payloadSize))
			if err != nil {
				return fmt.Errorf("ewf: read header section: %w", err)
			}
			info, err := parseHeaderPayload(buf)
			if err != nil {
				return fmt.Errorf("ewf: parse header section: %w", err)
			}
			r.caseInfo.mergeFrom(info)

		case format.SectionHeader2:
			buf, err := r.storage.ReadAt(int64(payloadOffset), int(payloadSize))
			if err != nil {
				return fmt.Errorf("ewf: read header2 section: %w", err)
			}
			info, err := parseHeader2Payload(buf)
			if err != nil {
				return fmt.Errorf("ewf: parse header2 section: %w", err)
			}
			header2Info.mergeFrom(info)

		case format.SectionDisk, format.SectionVolume:
			volBuf, err := r.storage.ReadAt(int64(payloadOffset), format.VolumeDescriptorSize)
			if err != nil {
				return fmt.Errorf("ewf: read volume descriptor: %w", err)
			}
			vol, err := format.UnmarshalVolumeDescriptor(volBuf)
			if err != nil {
				return fmt.Errorf("ewf: volume descriptor: %w", err)
			}
			if err := r.checkChecksum(volBuf[:format.VolumeDescriptorChecksumOffset], vol.Checksum, "volume descriptor"); err != nil {
				return err
			}
			if vol.SectorsPerChunk > 0 && vol.BytesPerSector > 0 {
				r.chunkSize = int(vol.SectorsPerChunk) * int(vol.BytesPerSector)
			}
			r.volumeInfo = volumeInfoFromDescriptor(vol)
			sawVolume = true

		case format.SectionTable:
			headerBuf, err := r.storage.ReadAt(int64(payloadOffset), format.TableHeaderFixedSize)
			if err != nil {
				return fmt.Errorf("ewf: read table header: %w", err)
			}
			th, err := format.UnmarshalTableHeader(headerBuf)
			if err != nil {
				return fmt.Errorf("ewf: table header: %w", err)
			}
			if err := r.checkChecksum(headerBuf[:format.TableHeaderChecksumOffset], th.Checksum, "table header"); err != nil {
				return err
			}

			entriesOffset := payloadOffset + uint64(format.TableHeaderFixedSize)
			entriesLen := int64(th.NumberOfEntries) * 4
			if int64(entriesOffset)+entriesLen > mediumSize {
				return fmt.Errorf("ewf: %w: table declares %d entries past end of medium", ErrMalformedTable, th.NumberOfEntries)
			}
			entryBuf, err := r.storage.ReadAt(int64(entriesOffset), int(entriesLen))
			if err != nil {
				return fmt.Errorf("ewf: read table entries: %w", err)
			}
			if len(entryBuf) != int(entriesLen) {
				return fmt.Errorf("ewf: %w: short table entry read", ErrMalformedTable)
			}

			entries := make([]uint32, th.NumberOfEntries, th.NumberOfEntries+1)
			for i := range entries {
				entries[i] = binary.LittleEndian.Uint32(entryBuf[i*4 : i*4+4])
			}
			if len(entries) == 0 {
				return fmt.Errorf("ewf: %w: empty table", ErrMalformedTable)
			}
			for _, e := range entries {
				if int64(th.BaseOffset)+int64(e&format.TableEntryOffsetMask) > mediumSize {
					return fmt.Errorf("ewf: %w: entry offset past end of medium", ErrMalformedTable)
				}
			}
			// Sentinel entry: lets ReadAt size every chunk, including the
			// last, by "next offset minus this offset". Ported from the
			// original's table.append(table[-1] + chunk_size).
			last := entries[len(entries)-1]
			entries = append(entries, last+uint32(r.chunkSize))

			r.index.append(indexedTable{
				firstChunkID: currentChunkOffset,
				header:       th,
				entries:      entries,
			})
			currentChunkOffset += th.NumberOfEntries

		case format.SectionDigest, format.SectionHash:
			digBuf, err := r.storage.ReadAt(int64(payloadOffset), format.DigestSectionSize)
			if err != nil {
				return fmt.Errorf("ewf: read digest section: %w", err)
			}
			dig, err := format.UnmarshalDigestRecord(digBuf)
			if err != nil {
				return fmt.Errorf("ewf: digest record: %w", err)
			}
			if err := r.checkChecksum(digBuf[:format.DigestChecksumOffset], dig.Checksum, "digest record"); err != nil {
				return err
			}
			r.digest = digestFromRecord(dig)
			r.hasDigest = true

		case format.SectionSectors:
			// Raw chunk payloads live here; addressed via the following
			// table section's base_offset, nothing to parse at this level.

		case format.SectionDone:
			// handled by the next-equals-self check below

		default:
			logger.Debugf("ewf: skipping unrecognized section %q at offset %d", desc.TypeString(), offset)
		}

		if desc.Next == offset {
			break
		}
		offset = desc.Next
	}

	if !sawVolume {
		return fmt.Errorf("ewf: %w", ErrNoVolumeInfo)
	}
	r.caseInfo.mergeFrom(header2Info)

	// The volume section may follow the tables (this package's writer puts
	// it last), so each sentinel is recomputed with the final chunk size.
	for i := range r.index.tables {
		e := r.index.tables[i].entries
		e[len(e)-1] = e[len(e)-2] + uint32(r.chunkSize)
	}

	r.size = int64(currentChunkOffset) * int64(r.chunkSize)
	return nil
}

func (r *EWFReader) checkChecksum(prefix []byte, stored uint32, what string) error {
	computed := format.Adler32(prefix)
	if computed == stored {
		return nil
	}
	if r.strict {
		return fmt.Errorf("ewf: %s: %w", what, ErrChecksumMismatch)
	}
	logger.Warnf("ewf: %s checksum mismatch: stored=%08x computed=%08x", what, stored, computed)
	return nil
}

// Size returns the logical image size in bytes: total_chunks * chunk_size.
func (r *EWFReader) Size() int64 { return r.size }

// VolumeInfo returns the decoded volume/disk descriptor.
func (r *EWFReader) VolumeInfo() VolumeInfo { return r.volumeInfo }

// CaseInfo returns the examiner/case attribution parsed from header and
// header2 sections, with header2 values taking precedence.
func (r *EWFReader) CaseInfo() CaseInfo { return r.caseInfo }

// Digest returns the acquisition MD5/SHA1 sums parsed from a digest or
// hash section, and whether one was present.
func (r *EWFReader) Digest() (Digest, bool) { return r.digest, r.hasDigest }

// readChunk returns the decompressed bytes of the given chunk, consulting
// and populating the cache on the way.
func (r *EWFReader) readChunk(chunkID uint64) ([]byte, error) {
	if data, ok := r.cache.Get(chunkID); ok {
		return data, nil
	}

	table, ok := r.index.findLE(chunkID)
	if !ok {
		return nil, nil
	}
	localIdx := chunkID - table.firstChunkID
	if int(localIdx)+1 >= len(table.entries) {
		return nil, nil
	}

	entry := table.entries[localIdx]
	next := table.entries[localIdx+1]
	thisOffset := entry & format.TableEntryOffsetMask
	nextOffset := next & format.TableEntryOffsetMask
	compressed := entry&format.TableEntryCompressedFlag != 0

	onDiskLen := int64(nextOffset) - int64(thisOffset)
	if onDiskLen <= 0 {
		return nil, fmt.Errorf("ewf: %w: non-increasing table entries at chunk %d", ErrMalformedTable, chunkID)
	}

	absOffset := int64(table.header.BaseOffset) + int64(thisOffset)
	raw, err := r.storage.ReadAt(absOffset, int(onDiskLen))
	if err != nil {
		return nil, fmt.Errorf("ewf: read chunk %d: %w", chunkID, err)
	}

	var data []byte
	if compressed {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("ewf: chunk %d: decompress: %w", chunkID, err)
		}
		var out bytes.Buffer
		if _, err := io.Copy(&out, zr); err != nil {
			zr.Close()
			return nil, fmt.Errorf("ewf: chunk %d: decompress: %w", chunkID, err)
		}
		zr.Close()
		data = out.Bytes()
	} else {
		data = raw
	}

	r.cache.Put(chunkID, data)
	return data, nil
}

// ReadAt reads len(p) bytes starting at offset, decompressing and caching
// chunks as needed. Satisfies io.ReaderAt's contract: a short read at the
// end of the logical image returns io.EOF alongside the bytes read.
func (r *EWFReader) ReadAt(p []byte, offset int64) (int, error) {
	total := 0
	for total < len(p) {
		cur := offset + int64(total)
		if cur >= r.size || r.chunkSize == 0 {
			break
		}
		chunkID := uint64(cur) / uint64(r.chunkSize)
		chunkOffset := int(uint64(cur) % uint64(r.chunkSize))

		data, err := r.readChunk(chunkID)
		if err != nil {
			return total, err
		}
		if len(data) == 0 {
			break
		}
		if chunkOffset >= len(data) {
			break
		}

		n := copy(p[total:], data[chunkOffset:])
		total += n
		if n == 0 {
			break
		}
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// ReadRange returns up to length bytes starting at offset as a fresh
// slice, mirroring the original's read(offset, length) helper: a short
// result at end-of-image is not an error.
func (r *EWFReader) ReadRange(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the underlying FileStorage's file descriptor, if the
// reader was opened against one it owns. Safe to call on any Storage; a
// no-op unless the storage exposes a Close method.
func (r *EWFReader) Close() error {
	if closer, ok := r.storage.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
