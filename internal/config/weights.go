package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipsleuth/origin"
)

// Weights returns the classifier weights from the [weights] section, starting from origin.DefaultWeights.
//
// Every signal is keyed by its kebab-case name with a value such as "windows:3, winrar:2"; an empty value disables the
// signal. Extended timestamp weights are keyed by payload size, for example "extended-timestamp-13".
func (l *Loader) Weights() (origin.Weights, error) {
	w := origin.DefaultWeights()

	sec, err := l.file().GetSection("weights")
	if err != nil {
		return w, nil
	}

	for _, k := range sec.Keys() {
		name := k.Name()

		if name == "min-stored-entries" {
			if w.MinStoredEntries, err = k.Int(); err != nil || w.MinStoredEntries < 0 {
				return w, fmt.Errorf("weights: invalid min-stored-entries %q", k.String())
			}
			continue
		}

		contrib, err := ParseContribution(k.String())
		if err != nil {
			return w, fmt.Errorf("weights: parse %s error: %w", name, err)
		}

		switch name {
		case "ntfs":
			w.NTFS = contrib
		case "ntfs-nanosecond-fill":
			w.NTFSNanosecondFill = contrib
		case "unix-ownership":
			w.UnixOwnership = contrib
		case "unicode-path":
			w.UnicodePath = contrib
		case "data-descriptor":
			w.DataDescriptor = contrib
		case "macos-resource-folder":
			w.MacOSResourceFolder = contrib
		case "all-stored":
			w.AllStored = contrib
		case "shared-root-folder":
			w.SharedRootFolder = contrib
		default:
			s, ok := strings.CutPrefix(name, "extended-timestamp-")
			if !ok {
				return w, fmt.Errorf("weights: unknown signal %q", name)
			}

			size, err := strconv.Atoi(s)
			if err != nil || size < 0 {
				return w, fmt.Errorf("weights: invalid extended timestamp size in %q", name)
			}
			w.ExtendedTimestampBySize[size] = contrib
		}
	}

	return w, w.Validate()
}

// Weights calls Loader.Weights on the DefaultLoader instance.
func Weights() (origin.Weights, error) {
	return DefaultLoader.Weights()
}

// ParseContribution parses a comma-separated list of candidate:weight pairs.
func ParseContribution(text string) (origin.Contribution, error) {
	c := origin.Contribution{}

	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("expected candidate:weight, got %q", part)
		}

		cand, err := origin.ParseCandidate(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}

		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %w", cand, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("weight for %s must not be negative, got %d", cand, v)
		}

		c[cand] += v
	}

	return c, nil
}

// ScanConfig contains the [scan] settings.
type ScanConfig struct {
	// MaxScanBytes limits the forward scan for entries of unknown size, 0 for no limit.
	MaxScanBytes int
	// KeepComment controls whether comments are kept.
	KeepComment bool
}

// ForScan returns configuration from the [scan] section.
//
// max-scan-bytes accepts human-readable sizes such as "64 MiB".
func (l *Loader) ForScan() (c ScanConfig, err error) {
	sec, err := l.file().GetSection("scan")
	if err != nil {
		return c, nil
	}

	if v := sec.Key("max-scan-bytes").String(); v != "" {
		n, err := humanize.ParseBytes(v)
		if err != nil {
			return c, fmt.Errorf("scan: invalid max-scan-bytes: %w", err)
		}
		c.MaxScanBytes = int(n)
	}

	if sec.HasKey("keep-comment") {
		if c.KeepComment, err = sec.Key("keep-comment").Bool(); err != nil {
			return c, fmt.Errorf("scan: invalid keep-comment: %w", err)
		}
	}

	return c, nil
}

// ForScan calls Loader.ForScan on the DefaultLoader instance.
func ForScan() (ScanConfig, error) {
	return DefaultLoader.ForScan()
}
