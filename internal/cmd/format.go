package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipsleuth/origin"
	"github.com/nguyengg/zipsleuth/zip/extra"
)

var methods = map[uint16]string{
	0:  "store",
	8:  "deflate",
	9:  "deflate64",
	12: "bzip2",
	14: "lzma",
	93: "zstd",
	95: "xz",
	99: "aes",
}

func methodName(m uint16) string {
	if s, ok := methods[m]; ok {
		return s
	}

	return fmt.Sprintf("method %d", m)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return formatTime(*t)
}

func formatSize(n uint64) string {
	return fmt.Sprintf("%s (%s bytes)", humanize.IBytes(n), humanize.Comma(int64(n)))
}

// formatExtra returns a one-line description of the extra field.
func formatExtra(f extra.Field) string {
	if f.Err != nil {
		return fmt.Sprintf("0x%04x at 0x%x, %d bytes: %v", f.ID, f.Offset, f.Size, f.Err)
	}

	switch v := f.Value.(type) {
	case extra.NTFS:
		if !v.HasTimes {
			return "NTFS without timestamps"
		}
		return fmt.Sprintf("NTFS mtime=%s atime=%s ctime=%s", formatTime(v.Mtime), formatTime(v.Atime), formatTime(v.Ctime))
	case extra.ExtendedTimestamp:
		return fmt.Sprintf("extended timestamp (%d bytes) flags=0x%02x mtime=%s atime=%s ctime=%s",
			f.Size, v.Flags, formatTimePtr(v.Mtime), formatTimePtr(v.Atime), formatTimePtr(v.Ctime))
	case extra.UnixOwnership:
		return fmt.Sprintf("unix ownership uid=%d gid=%d", v.UID, v.GID)
	case extra.UnicodePath:
		return fmt.Sprintf("unicode path %q crc=0x%08x", v.Name, v.CRC32)
	case extra.LegacyUnix:
		s := fmt.Sprintf("legacy unix atime=%s mtime=%s", formatTime(v.Atime), formatTime(v.Mtime))
		if v.UID != nil && v.GID != nil {
			s += fmt.Sprintf(" uid=%d gid=%d", *v.UID, *v.GID)
		}
		return s
	default:
		return fmt.Sprintf("unknown 0x%04x (%d bytes)", f.ID, f.Size)
	}
}

// featureNames lists the observed signals by the same names used in the [weights] configuration section.
func featureNames(f origin.Features) string {
	var names []string
	for _, v := range []struct {
		name string
		ok   bool
	}{
		{"ntfs", f.NTFS},
		{"ntfs-nanosecond-fill", f.NTFSNanosecondFill},
		{"extended-timestamp", f.ExtendedTimestamp},
		{"unix-ownership", f.UnixOwnership},
		{"unicode-path", f.UnicodePath},
		{"data-descriptor", f.DataDescriptor},
		{"macos-resource-folder", f.MacOSResourceFolder},
		{"all-stored", f.AllStored},
		{"shared-root-folder", f.SharedRootFolder},
		{"utf8-names", f.UTF8Names},
		{"timezone-difference", f.TimezoneDifference},
	} {
		if v.ok {
			names = append(names, v.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ", ")
}

func formatScores(r origin.Report) string {
	parts := make([]string, len(r.Ranking))
	for i, s := range r.Ranking {
		parts[i] = fmt.Sprintf("%s=%d", s.Candidate, s.Score)
	}

	return strings.Join(parts, ", ")
}

// formatOffset formats a timezone offset like UTC+05:30.
func formatOffset(d time.Duration) string {
	sign := '+'
	if d < 0 {
		sign, d = '-', -d
	}

	return fmt.Sprintf("UTC%c%02d:%02d", sign, int(d.Hours()), int(d.Minutes())%60)
}
