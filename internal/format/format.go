// Package format defines the fixed-layout binary records that make up an
// EWFv1 container: file headers, section descriptors, the volume descriptor,
// and table headers/entries. Every record here has a known byte width and is
// read and written with encoding/binary rather than reflection.
package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
)

// SignatureV1 is the 8-byte magic that opens an EWFv1 segment file.
var SignatureV1 = [8]byte{'E', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}

// SignatureV2 is the 8-byte magic that opens an EWFv2 segment file. EWFv2 is
// recognized but not read or written by this package.
var SignatureV2 = [8]byte{'E', 'V', 'F', '2', 0x0d, 0x0a, 0x81, 0x00}

// Section type tags, stored as a 16-byte zero-padded ASCII field.
const (
	SectionHeader  = "header"
	SectionHeader2 = "header2"
	SectionDisk    = "disk"
	SectionVolume  = "volume"
	SectionSectors = "sectors"
	SectionTable   = "table"
	SectionDigest  = "digest"
	SectionHash    = "hash"
	SectionDone    = "done"
)

// Media types for VolumeDescriptor.MediaType.
const (
	MediaTypeRemovable = 0x00
	MediaTypeFixed     = 0x01
	MediaTypeOptical   = 0x03
	MediaTypeLogical   = 0x0e
	MediaTypeRAM       = 0x10
)

// Media flags for VolumeDescriptor.MediaFlags.
const (
	MediaFlagImage    = 0x01
	MediaFlagPhysical = 0x02
	MediaFlagFastbloc = 0x04
	MediaFlagTableau  = 0x08
)

// Compression levels for VolumeDescriptor.CompressionLevel.
const (
	CompressionNone = 0x00
	CompressionGood = 0x01
	CompressionBest = 0x02
)

// FileHeaderV1Size is the on-disk size of FileHeaderV1.
const FileHeaderV1Size = 13

// FileHeaderV1 is the 13-byte header that opens every EWFv1 segment file.
type FileHeaderV1 struct {
	Signature     [8]byte
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

// NewFileHeaderV1 builds the standard single-segment header this package
// writes: segment number 1, both field sentinels set to 1.
func NewFileHeaderV1() FileHeaderV1 {
	return FileHeaderV1{
		Signature:     SignatureV1,
		FieldsStart:   1,
		SegmentNumber: 1,
		FieldsEnd:     1,
	}
}

// Marshal encodes the header to its 13-byte wire form.
func (h FileHeaderV1) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(FileHeaderV1Size)
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// UnmarshalFileHeaderV1 decodes a 13-byte buffer into a FileHeaderV1.
func UnmarshalFileHeaderV1(data []byte) (FileHeaderV1, error) {
	var h FileHeaderV1
	if len(data) < FileHeaderV1Size {
		return h, fmt.Errorf("format: short file header: got %d bytes, want %d", len(data), FileHeaderV1Size)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("format: decode file header: %w", err)
	}
	return h, nil
}

// FileHeaderV2Size is the fixed-width prefix of an EWFv2 header (the
// variable-length segment-file identifier follows the set identifier in
// real EWFv2 files, but this package only recognizes the signature).
const FileHeaderV2Size = 31

// Compression methods carried in an EWFv2 file header.
const (
	CompressionMethodNone    = 0
	CompressionMethodDeflate = 1
	CompressionMethodBzip2   = 2
)

// FileHeaderV2 mirrors the fixed fields of an EWFv2 segment header. This
// package recognizes it only to distinguish "unsupported version" from
// "bad signature" on open. major_version sits at offset 9, not 8: Reserved
// is a one-byte gap between the signature and it.
type FileHeaderV2 struct {
	Signature         [8]byte
	Reserved          byte
	MajorVersion      uint8
	MinorVersion      uint8
	CompressionMethod uint16
	SegmentNumber     uint16
	SetIdentifier     [16]byte
}

// UnmarshalFileHeaderV2 decodes a FileHeaderV2 from its wire form.
func UnmarshalFileHeaderV2(data []byte) (FileHeaderV2, error) {
	var h FileHeaderV2
	if len(data) < FileHeaderV2Size {
		return h, fmt.Errorf("format: short v2 file header: got %d bytes, want %d", len(data), FileHeaderV2Size)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("format: decode v2 file header: %w", err)
	}
	return h, nil
}

// SectionDescriptorSize is the fixed on-disk size of a section descriptor.
const SectionDescriptorSize = 76

// SectionDescriptor is the 76-byte record that precedes every section's
// payload. Next equal to the descriptor's own absolute offset marks the
// terminal ("done") section.
type SectionDescriptor struct {
	Type     [16]byte
	Next     uint64
	Size     uint64
	Reserved [40]byte
	Checksum uint32
}

// TypeString returns the section's type tag with trailing zero padding
// trimmed.
func (s SectionDescriptor) TypeString() string {
	return string(bytes.TrimRight(s.Type[:], "\x00"))
}

// NewSectionDescriptor builds a descriptor for the given type tag. Next,
// Size and Checksum are finalized later as the following section's offset
// becomes known.
func NewSectionDescriptor(sectionType string) SectionDescriptor {
	var sd SectionDescriptor
	copy(sd.Type[:], sectionType)
	return sd
}

// Marshal encodes the descriptor to its 76-byte wire form.
func (s SectionDescriptor) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(SectionDescriptorSize)
	_ = binary.Write(buf, binary.LittleEndian, s)
	return buf.Bytes()
}

// UnmarshalSectionDescriptor decodes a 76-byte buffer into a
// SectionDescriptor.
func UnmarshalSectionDescriptor(data []byte) (SectionDescriptor, error) {
	var sd SectionDescriptor
	if len(data) < SectionDescriptorSize {
		return sd, fmt.Errorf("format: short section descriptor: got %d bytes, want %d", len(data), SectionDescriptorSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &sd); err != nil {
		return sd, fmt.Errorf("format: decode section descriptor: %w", err)
	}
	return sd, nil
}

// SectionDescriptorChecksumOffset is the byte offset of the Checksum field within a marshaled
// SectionDescriptor; Adler32 is computed over [0, ChecksumOffset).
const SectionDescriptorChecksumOffset = SectionDescriptorSize - 4

// VolumeDescriptorSize is the fixed on-disk size of a volume descriptor.
const VolumeDescriptorSize = 94

// VolumeDescriptor is the 94-byte record carried by a "disk"/"volume"
// section, describing chunk and sector geometry for the image. Field widths
// and offsets follow the original ewf_volume layout bit-for-bit:
// media_type(4) number_of_chunks(4) sectors_per_chunk(4) bytes_per_sector(4)
// number_of_sectors(8) chs_cylinders(4) chs_heads(4) chs_sectors(4)
// media_flags(4) reserved(12) compression_level(1) reserved(37) checksum(4).
type VolumeDescriptor struct {
	MediaType        uint32
	NumberOfChunks   uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	NumberOfSectors  uint64
	CHSCylinders     uint32
	CHSHeads         uint32
	CHSSectors       uint32
	MediaFlags       uint32
	Reserved1        [12]byte
	CompressionLevel uint8
	Reserved2        [37]byte
	Checksum         uint32
}

// VolumeDescriptorChecksumOffset is the byte offset of the Checksum field.
const VolumeDescriptorChecksumOffset = VolumeDescriptorSize - 4

// Marshal encodes the volume descriptor to its 94-byte wire form.
func (v VolumeDescriptor) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(VolumeDescriptorSize)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// UnmarshalVolumeDescriptor decodes a 94-byte buffer into a VolumeDescriptor.
func UnmarshalVolumeDescriptor(data []byte) (VolumeDescriptor, error) {
	var v VolumeDescriptor
	if len(data) < VolumeDescriptorSize {
		return v, fmt.Errorf("format: short volume descriptor: got %d bytes, want %d", len(data), VolumeDescriptorSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("format: decode volume descriptor: %w", err)
	}
	return v, nil
}

// TableHeaderFixedSize is the size of a table header's fixed fields,
// excluding the variable-length entry array that follows it.
const TableHeaderFixedSize = 24

// TableHeader is the fixed-width prefix of a "table" section's payload.
type TableHeader struct {
	NumberOfEntries uint64
	BaseOffset      uint64
	Reserved        [4]byte
	Checksum        uint32
}

// TableHeaderChecksumOffset is the byte offset of the Checksum field.
const TableHeaderChecksumOffset = TableHeaderFixedSize - 4

// Marshal encodes the table header to its 24-byte wire form.
func (t TableHeader) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(TableHeaderFixedSize)
	_ = binary.Write(buf, binary.LittleEndian, t)
	return buf.Bytes()
}

// UnmarshalTableHeader decodes a 24-byte buffer into a TableHeader.
func UnmarshalTableHeader(data []byte) (TableHeader, error) {
	var t TableHeader
	if len(data) < TableHeaderFixedSize {
		return t, fmt.Errorf("format: short table header: got %d bytes, want %d", len(data), TableHeaderFixedSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &t); err != nil {
		return t, fmt.Errorf("format: decode table header: %w", err)
	}
	return t, nil
}

// TableEntryCompressedFlag is bit 31 of a table entry: set when the chunk
// payload is zlib-compressed.
const TableEntryCompressedFlag = uint32(0x80000000)

// TableEntryOffsetMask isolates bits 0-30: the chunk's offset relative to
// the enclosing table's base offset.
const TableEntryOffsetMask = uint32(0x7fffffff)

// DigestSectionSize is the fixed on-disk size of a digest section's
// payload (MD5 + SHA1 + padding + checksum).
const DigestSectionSize = 80

// DigestRecord carries the MD5/SHA1 sums of an acquired stream, carried in
// "digest" or "hash" sections.
type DigestRecord struct {
	MD5      [16]byte
	SHA1     [20]byte
	Reserved [40]byte
	Checksum uint32
}

// Marshal encodes the digest record to its 80-byte wire form.
func (d DigestRecord) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(DigestSectionSize)
	_ = binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// UnmarshalDigestRecord decodes an 80-byte buffer into a DigestRecord.
func UnmarshalDigestRecord(data []byte) (DigestRecord, error) {
	var d DigestRecord
	if len(data) < DigestSectionSize {
		return d, fmt.Errorf("format: short digest record: got %d bytes, want %d", len(data), DigestSectionSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &d); err != nil {
		return d, fmt.Errorf("format: decode digest record: %w", err)
	}
	return d, nil
}

// DigestChecksumOffset is the byte offset of the Checksum field.
const DigestChecksumOffset = DigestSectionSize - 4

// Adler32 computes the checksum used throughout the container: RFC 1950
// Adler-32 over a record's prefix, up to (exclusive of) its checksum field.
func Adler32(data []byte) uint32 {
	return adler32.Checksum(data)
}
