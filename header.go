package ewf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// parseHeaderPayload decodes a "header" section's zlib-compressed ASCII
// payload into CaseInfo, following laenix-ewfgo's ParseHeaderSection.
func parseHeaderPayload(compressed []byte) (CaseInfo, error) {
	text, err := inflateText(compressed)
	if err != nil {
		return CaseInfo{}, err
	}
	return parseCaseInfoLines(text), nil
}

// parseHeader2Payload decodes a "header2" section's zlib-compressed
// UTF-16LE payload into CaseInfo, using golang.org/x/text/encoding/unicode
// the way laenix-ewfgo's internal parser BOM-sniffs EnCase header2 blobs.
func parseHeader2Payload(compressed []byte) (CaseInfo, error) {
	raw, err := inflateBytes(compressed)
	if err != nil {
		return CaseInfo{}, err
	}

	text := string(raw)
	if len(raw) >= 2 {
		switch {
		case raw[0] == 0xff && raw[1] == 0xfe:
			dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
			if utf8, _, err := transform.Bytes(dec, raw); err == nil {
				text = string(utf8)
			}
		case raw[0] == 0xfe && raw[1] == 0xff:
			dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
			if utf8, _, err := transform.Bytes(dec, raw); err == nil {
				text = string(utf8)
			}
		}
	}

	return parseCaseInfoLines(text), nil
}

func inflateBytes(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("ewf: open header zlib stream: %w", err)
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, fmt.Errorf("ewf: inflate header: %w", err)
	}
	return out.Bytes(), nil
}

func inflateText(compressed []byte) (string, error) {
	raw, err := inflateBytes(compressed)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// parseCaseInfoLines parses EnCase's tab-separated header text: after the
// "main" category line comes a row of field tags ("c\tn\ta\t...") and then
// a row of values in the same column order. Unrecognized tags are
// silently skipped.
func parseCaseInfoLines(data string) CaseInfo {
	var info CaseInfo
	var keys, values []string
	lines := strings.Split(strings.ReplaceAll(data, "\r", ""), "\n")
	for i := 0; i+2 < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "main" {
			keys = strings.Split(lines[i+1], "\t")
			values = strings.Split(lines[i+2], "\t")
			break
		}
	}
	for j := 0; j < len(keys) && j < len(values); j++ {
		key := strings.TrimSpace(keys[j])
		value := strings.TrimSpace(values[j])
		switch key {
		case "c":
			info.CaseNumber = value
		case "n":
			info.EvidenceNumber = value
		case "a":
			info.UniqueDescription = value
		case "e":
			info.ExaminerName = value
		case "t":
			info.Notes = value
		case "av":
			info.Version = value
		case "ov":
			info.Platform = value
		case "m":
			info.AcquisitionDate = value
		case "u":
			info.SystemDate = value
		case "p":
			info.PasswordHash = value
		case "r":
			info.Char = value
		}
	}
	return info
}

// buildHeaderPayload renders CaseInfo into the tab-separated EnCase header
// text body (category line, field-name line, field-value line) and returns
// it zlib-compressed, ready to write as a "header" section's payload.
func buildHeaderPayload(info CaseInfo) ([]byte, error) {
	fields := []string{"c", "n", "a", "e", "t", "av", "ov", "m", "u", "p", "r"}
	values := []string{
		info.CaseNumber, info.EvidenceNumber, info.UniqueDescription,
		info.ExaminerName, info.Notes, info.Version, info.Platform,
		info.AcquisitionDate, info.SystemDate, info.PasswordHash, info.Char,
	}

	var text strings.Builder
	text.WriteString("1\n")
	text.WriteString("main\n")
	text.WriteString(strings.Join(fields, "\t"))
	text.WriteString("\n")
	text.WriteString(strings.Join(values, "\t"))
	text.WriteString("\n\n")

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(text.String())); err != nil {
		return nil, fmt.Errorf("ewf: compress header: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ewf: compress header: %w", err)
	}
	return buf.Bytes(), nil
}
