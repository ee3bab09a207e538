package origin

import (
	"fmt"
	"maps"
)

// Candidate is one of the tools or operating systems an archive can be attributed to.
type Candidate string

const (
	// Windows covers Windows Explorer's compressed folders, 7-Zip, and other tools writing NTFS timestamps.
	Windows Candidate = "windows"
	// WinRAR covers Unicode-aware Windows archivers such as WinRAR.
	WinRAR Candidate = "winrar"
	// MacOS covers Archive Utility, Finder's Compress, and ditto.
	MacOS Candidate = "macos"
	// Linux covers Info-ZIP zip as shipped by most Linux distributions.
	Linux Candidate = "linux"
	// GitArchive covers tools that wrap everything in a single root folder such as git archive.
	GitArchive Candidate = "git-archive"
	// StoringTool covers tools that store entries without compression.
	StoringTool Candidate = "storing-tool"
)

// Candidates is the closed, ordered set of tracked candidates. The order is used to break ties in listings.
var Candidates = []Candidate{Windows, WinRAR, MacOS, Linux, GitArchive, StoringTool}

var descriptions = map[Candidate]string{
	Windows:     "Windows-based tool (Explorer, 7-Zip)",
	WinRAR:      "Windows with Unicode support (e.g. WinRAR)",
	MacOS:       "macOS Archive Utility or similar macOS tool",
	Linux:       "Unix/Linux Info-ZIP",
	GitArchive:  "root-wrapping tool (e.g. git archive)",
	StoringTool: "tool storing entries uncompressed",
}

// Description returns a human-readable description of the candidate.
func (c Candidate) Description() string {
	if d, ok := descriptions[c]; ok {
		return d
	}

	return string(c)
}

// ParseCandidate returns the Candidate with the given name.
func ParseCandidate(name string) (Candidate, error) {
	for _, c := range Candidates {
		if string(c) == name {
			return c, nil
		}
	}

	return "", fmt.Errorf("unknown candidate %q", name)
}

// Contribution is how many points each candidate earns when a signal is observed.
type Contribution map[Candidate]int

// Weights is the table of signal contributions used by a Classifier.
//
// Per-entry signals are applied once for every entry exhibiting them; archive-wide signals are applied at most once
// per archive.
type Weights struct {
	// NTFS applies to entries with an NTFS extra field.
	NTFS Contribution
	// NTFSNanosecondFill applies to entries whose NTFS timestamps carry sub-second ticks.
	NTFSNanosecondFill Contribution
	// ExtendedTimestampBySize applies to entries with an extended timestamp extra field of the keyed payload size.
	ExtendedTimestampBySize map[int]Contribution
	// UnixOwnership applies to entries with a Unix uid/gid extra field.
	UnixOwnership Contribution
	// UnicodePath applies to entries with an Info-ZIP Unicode path extra field.
	UnicodePath Contribution
	// DataDescriptor applies to entries followed by a data descriptor with signature.
	DataDescriptor Contribution

	// MacOSResourceFolder applies once if any entry lives under __MACOSX/.
	MacOSResourceFolder Contribution
	// AllStored applies once if every non-empty entry is stored and there are at least MinStoredEntries of them.
	AllStored Contribution
	// MinStoredEntries is the number of non-empty entries needed before AllStored can apply.
	MinStoredEntries int
	// SharedRootFolder applies once if every entry (ignoring __MACOSX/) lives under the same top-level folder.
	SharedRootFolder Contribution
}

// DefaultWeights returns a fresh copy of the default weights.
func DefaultWeights() Weights {
	return Weights{
		NTFS:               Contribution{Windows: 3, WinRAR: 2},
		NTFSNanosecondFill: Contribution{Windows: 1, WinRAR: 1},
		ExtendedTimestampBySize: map[int]Contribution{
			9:  {Linux: 2},
			19: {MacOS: 2},
		},
		UnixOwnership:       Contribution{MacOS: 1, Linux: 1},
		UnicodePath:         Contribution{WinRAR: 3},
		DataDescriptor:      Contribution{MacOS: 1},
		MacOSResourceFolder: Contribution{MacOS: 10},
		AllStored:           Contribution{StoringTool: 1},
		MinStoredEntries:    2,
		SharedRootFolder:    Contribution{GitArchive: 1},
	}
}

// Clone returns a deep copy of w so that the copy can be modified independently.
func (w Weights) Clone() Weights {
	c := w
	c.NTFS = maps.Clone(w.NTFS)
	c.NTFSNanosecondFill = maps.Clone(w.NTFSNanosecondFill)
	c.UnixOwnership = maps.Clone(w.UnixOwnership)
	c.UnicodePath = maps.Clone(w.UnicodePath)
	c.DataDescriptor = maps.Clone(w.DataDescriptor)
	c.MacOSResourceFolder = maps.Clone(w.MacOSResourceFolder)
	c.AllStored = maps.Clone(w.AllStored)
	c.SharedRootFolder = maps.Clone(w.SharedRootFolder)

	if w.ExtendedTimestampBySize != nil {
		c.ExtendedTimestampBySize = make(map[int]Contribution, len(w.ExtendedTimestampBySize))
		for size, contrib := range w.ExtendedTimestampBySize {
			c.ExtendedTimestampBySize[size] = maps.Clone(contrib)
		}
	}

	return c
}

// Validate returns an error if any contribution names an unknown candidate or is negative.
func (w Weights) Validate() error {
	check := func(signal string, contrib Contribution) error {
		for c, v := range contrib {
			if _, err := ParseCandidate(string(c)); err != nil {
				return fmt.Errorf("signal %s: %w", signal, err)
			}
			if v < 0 {
				return fmt.Errorf("signal %s: weight for %s must not be negative, got %d", signal, c, v)
			}
		}
		return nil
	}

	for signal, contrib := range map[string]Contribution{
		"ntfs":                  w.NTFS,
		"ntfs-nanosecond-fill":  w.NTFSNanosecondFill,
		"unix-ownership":        w.UnixOwnership,
		"unicode-path":          w.UnicodePath,
		"data-descriptor":       w.DataDescriptor,
		"macos-resource-folder": w.MacOSResourceFolder,
		"all-stored":            w.AllStored,
		"shared-root-folder":    w.SharedRootFolder,
	} {
		if err := check(signal, contrib); err != nil {
			return err
		}
	}

	for size, contrib := range w.ExtendedTimestampBySize {
		if err := check(fmt.Sprintf("extended-timestamp-%d", size), contrib); err != nil {
			return err
		}
	}

	if w.MinStoredEntries < 0 {
		return fmt.Errorf("min stored entries must not be negative, got %d", w.MinStoredEntries)
	}

	return nil
}
