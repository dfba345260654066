package ewf

import "github.com/caseforge/ewfgo/internal/format"

// CaseInfo carries the examiner/case/evidence attribution fields parsed out
// of a "header" or "header2" section, tab-separated key/value pairs in the
// style EnCase writes them. Field tags follow laenix-ewfgo's
// HeaderSectionString; header2 values win over header when both sections
// are present, since header2 carries the richer EnCase 5+ field set.
type CaseInfo struct {
	CaseNumber        string // c
	EvidenceNumber    string // n
	UniqueDescription string // a
	ExaminerName      string // e
	Notes             string // t
	Version           string // av
	Platform          string // ov
	AcquisitionDate   string // m
	SystemDate        string // u
	PasswordHash      string // p
	Char              string // r
}

// mergeFrom overlays non-empty fields of other onto c, used to let header2
// take precedence over an already-parsed header.
func (c *CaseInfo) mergeFrom(other CaseInfo) {
	if other.CaseNumber != "" {
		c.CaseNumber = other.CaseNumber
	}
	if other.EvidenceNumber != "" {
		c.EvidenceNumber = other.EvidenceNumber
	}
	if other.UniqueDescription != "" {
		c.UniqueDescription = other.UniqueDescription
	}
	if other.ExaminerName != "" {
		c.ExaminerName = other.ExaminerName
	}
	if other.Notes != "" {
		c.Notes = other.Notes
	}
	if other.Version != "" {
		c.Version = other.Version
	}
	if other.Platform != "" {
		c.Platform = other.Platform
	}
	if other.AcquisitionDate != "" {
		c.AcquisitionDate = other.AcquisitionDate
	}
	if other.SystemDate != "" {
		c.SystemDate = other.SystemDate
	}
	if other.PasswordHash != "" {
		c.PasswordHash = other.PasswordHash
	}
	if other.Char != "" {
		c.Char = other.Char
	}
}

// VolumeInfo is the decoded payload of a "disk"/"volume" section.
type VolumeInfo struct {
	MediaType        uint32
	NumberOfChunks   uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	NumberOfSectors  uint64
	MediaFlags       uint32
	CompressionLevel uint8
}

func volumeInfoFromDescriptor(v format.VolumeDescriptor) VolumeInfo {
	return VolumeInfo{
		MediaType:        v.MediaType,
		NumberOfChunks:   v.NumberOfChunks,
		SectorsPerChunk:  v.SectorsPerChunk,
		BytesPerSector:   v.BytesPerSector,
		NumberOfSectors:  v.NumberOfSectors,
		MediaFlags:       v.MediaFlags,
		CompressionLevel: v.CompressionLevel,
	}
}

// Digest carries the MD5/SHA1 sums of an acquired stream, parsed from a
// "digest" or "hash" section. A zero-value Digest means none was present.
type Digest struct {
	MD5  [16]byte
	SHA1 [20]byte
}

func digestFromRecord(d format.DigestRecord) Digest {
	return Digest{MD5: d.MD5, SHA1: d.SHA1}
}
