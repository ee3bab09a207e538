// Package origin guesses which tool or operating system produced a ZIP archive.
//
// The guess is a weighted heuristic over structural signals such as which extra fields are present, how names are
// laid out, and how data is stored. It is evidence, not proof of provenance: any tool can write any extra field, and
// archives are routinely repacked.
package origin

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nguyengg/zipsleuth/zip/extra"
)

// MacOSResourceFolder is the top-level folder macOS uses for AppleDouble resource forks.
const MacOSResourceFolder = "__MACOSX/"

// Entry is one archive entry as seen by the Classifier.
type Entry struct {
	// Name is the entry's display name.
	Name             string
	Method           uint16
	Flags            uint16
	CompressedSize   uint64
	UncompressedSize uint64
	// Extras are the entry's decoded extra fields.
	Extras []extra.Field
	// DataDescriptor is true if a data descriptor signature followed the entry's data.
	DataDescriptor bool
	// Modified is the MS-DOS modification time as recorded, in the writer's local time but labelled UTC.
	//
	// The zero value means the entry's date was unset or invalid.
	Modified time.Time
}

// Features records which signals have been observed anywhere in the archive.
type Features struct {
	NTFS                bool
	NTFSNanosecondFill  bool
	ExtendedTimestamp   bool
	UnixOwnership       bool
	UnicodePath         bool
	DataDescriptor      bool
	MacOSResourceFolder bool
	AllStored           bool
	SharedRootFolder    bool
	// UTF8Names is true if any entry flags its name as UTF-8 or carries a Unicode path.
	UTF8Names bool
	// TimezoneDifference is true if the MS-DOS times disagree with the UTC times from extra fields by a whole
	// timezone offset.
	TimezoneDifference bool
}

// Encoding is a hint about how entry names were encoded.
type Encoding string

const (
	EncodingUTF8    Encoding = "UTF-8"
	EncodingUTF16   Encoding = "UTF-16"
	EncodingUnknown Encoding = "Unknown"
)

// maxTimezoneOffset is the largest offset of any real timezone (UTC+14:00).
const maxTimezoneOffset = 14 * time.Hour

// Score is one candidate's total.
type Score struct {
	Candidate Candidate
	Score     int
}

// Report is the outcome of classifying an archive.
type Report struct {
	// Scores has an entry for every tracked candidate.
	Scores map[Candidate]int
	// Ranking lists every tracked candidate by descending score, ties broken by the order of Candidates.
	Ranking []Score
	// Features lists which signals were observed.
	Features Features
	// Winners are the candidates tied at the maximum score.
	Winners []Candidate
	// Unknown is true if every tracked candidate is tied, including when all scores are zero.
	Unknown bool
	// Entries is the number of entries observed.
	Entries int
	// RootFolder is the shared top-level folder if Features.SharedRootFolder is true.
	RootFolder string
	// Encoding guesses how names were encoded.
	//
	// Names flagged as UTF-8, Unicode path fields, and a macOS resource folder all mean UTF-8. NTFS times alone point
	// at a Windows writer and thus UTF-16 names. Anything else is EncodingUnknown.
	Encoding Encoding
	// TimezoneOffset is the most common difference between the MS-DOS local times and the UTC modification times
	// from extended timestamp or NTFS fields, rounded to the nearest 15 minutes. Ties go to the offset observed first.
	TimezoneOffset time.Duration
	// TimezoneSamples is the number of entries agreeing with TimezoneOffset. TimezoneOffset is meaningless if zero.
	TimezoneSamples int
}

// Verdict returns a one-line human-readable summary.
func (r Report) Verdict() string {
	switch {
	case r.Unknown:
		return "origin unknown"
	case len(r.Winners) == 1:
		return fmt.Sprintf("probable origin: %s", r.Winners[0].Description())
	default:
		names := make([]string, len(r.Winners))
		for i, c := range r.Winners {
			names[i] = c.Description()
		}
		return fmt.Sprintf("tie between %d candidates: %s", len(names), strings.Join(names, "; "))
	}
}

// Classifier accumulates scores over the entries of one archive.
//
// A Classifier is not safe for concurrent use; create one per archive.
type Classifier struct {
	weights  Weights
	scores   map[Candidate]int
	features Features
	entries  int

	nonEmpty, stored int

	root       string
	rootNames  int
	rootShared bool

	// offsets counts entries per timezone offset; offsetOrder keeps the order in which offsets were first seen.
	offsets     map[time.Duration]int
	offsetOrder []time.Duration
}

// NewClassifier creates a Classifier using the given weights.
//
// Use DefaultWeights unless the weights have been overridden by configuration.
func NewClassifier(w Weights) *Classifier {
	c := &Classifier{
		weights:    w.Clone(),
		scores:     make(map[Candidate]int, len(Candidates)),
		rootShared: true,
		offsets:    make(map[time.Duration]int),
	}
	for _, cand := range Candidates {
		c.scores[cand] = 0
	}

	return c
}

func (c *Classifier) apply(contrib Contribution) {
	for _, cand := range Candidates {
		c.scores[cand] += max(contrib[cand], 0)
	}
}

// Observe adds the per-entry signals of e and records the facts needed for archive-wide signals.
func (c *Classifier) Observe(e Entry) {
	c.entries++

	var ntfs, ntfsFill, unix, unicode bool
	var utSizes []int
	var mtime, ntfsMtime time.Time
	for _, f := range e.Extras {
		switch f.ID {
		case extra.NTFSID:
			ntfs = true
			if v, ok := f.Value.(extra.NTFS); ok && f.Err == nil {
				ntfsFill = ntfsFill || v.SubSecond()
				if v.HasTimes && ntfsMtime.IsZero() {
					ntfsMtime = v.Mtime
				}
			}
		case extra.ExtendedTimestampID:
			if !slices.Contains(utSizes, f.Size) {
				utSizes = append(utSizes, f.Size)
			}
			if v, ok := f.Value.(extra.ExtendedTimestamp); ok && f.Err == nil && v.Mtime != nil && mtime.IsZero() {
				mtime = *v.Mtime
			}
		case extra.UnixOwnershipID, extra.LegacyUnixID:
			unix = true
		case extra.UnicodePathID:
			unicode = true
		}
	}

	if ntfs {
		c.features.NTFS = true
		c.apply(c.weights.NTFS)
	}
	if ntfsFill {
		c.features.NTFSNanosecondFill = true
		c.apply(c.weights.NTFSNanosecondFill)
	}
	for _, size := range utSizes {
		c.features.ExtendedTimestamp = true
		c.apply(c.weights.ExtendedTimestampBySize[size])
	}
	if unix {
		c.features.UnixOwnership = true
		c.apply(c.weights.UnixOwnership)
	}
	if unicode {
		c.features.UnicodePath = true
		c.features.UTF8Names = true
		c.apply(c.weights.UnicodePath)
	}
	if e.DataDescriptor {
		c.features.DataDescriptor = true
		c.apply(c.weights.DataDescriptor)
	}
	if e.Flags&0x800 != 0 {
		c.features.UTF8Names = true
	}

	if e.UncompressedSize > 0 || e.CompressedSize > 0 {
		c.nonEmpty++
		if e.Method == 0 {
			c.stored++
		}
	}

	if mtime.IsZero() {
		mtime = ntfsMtime
	}
	c.observeTimes(e.Modified, mtime)

	c.observeName(e.Name)
}

// observeTimes records the offset between a local MS-DOS time and a UTC time of the same entry.
//
// MS-DOS times have a 2-second resolution and some writers round up, so differences more than 2 seconds away from a
// multiple of 15 minutes are not timezone offsets.
func (c *Classifier) observeTimes(local, utc time.Time) {
	if local.IsZero() || utc.IsZero() {
		return
	}

	diff := local.Sub(utc)
	offset := diff.Round(15 * time.Minute)
	if (diff-offset).Abs() > 2*time.Second || offset.Abs() > maxTimezoneOffset {
		return
	}

	if _, ok := c.offsets[offset]; !ok {
		c.offsetOrder = append(c.offsetOrder, offset)
	}
	c.offsets[offset]++
}

func (c *Classifier) observeName(name string) {
	if strings.HasPrefix(name, MacOSResourceFolder) || name == strings.TrimSuffix(MacOSResourceFolder, "/") {
		c.features.MacOSResourceFolder = true
		return
	}

	seg, _, found := strings.Cut(name, "/")
	switch {
	case !found || seg == "":
		c.rootShared = false
	case c.rootNames == 0:
		c.root = seg
	case seg != c.root:
		c.rootShared = false
	}
	c.rootNames++
}

// Finalize applies the archive-wide signals and returns the report.
//
// Finalize does not modify the Classifier so it can be called more than once with identical results.
func (c *Classifier) Finalize() Report {
	r := Report{
		Scores:   make(map[Candidate]int, len(Candidates)),
		Features: c.features,
		Entries:  c.entries,
	}
	for _, cand := range Candidates {
		r.Scores[cand] = c.scores[cand]
	}

	add := func(contrib Contribution) {
		for _, cand := range Candidates {
			r.Scores[cand] += max(contrib[cand], 0)
		}
	}

	if r.Features.MacOSResourceFolder {
		add(c.weights.MacOSResourceFolder)
	}
	if c.nonEmpty > 0 && c.nonEmpty >= c.weights.MinStoredEntries && c.stored == c.nonEmpty {
		r.Features.AllStored = true
		add(c.weights.AllStored)
	}
	if c.rootShared && c.rootNames > 0 {
		r.Features.SharedRootFolder = true
		r.RootFolder = c.root
		add(c.weights.SharedRootFolder)
	}

	for _, offset := range c.offsetOrder {
		if n := c.offsets[offset]; n > r.TimezoneSamples {
			r.TimezoneOffset, r.TimezoneSamples = offset, n
		}
	}
	r.Features.TimezoneDifference = r.TimezoneSamples > 0 && r.TimezoneOffset != 0

	switch {
	case r.Features.UTF8Names, r.Features.MacOSResourceFolder:
		r.Encoding = EncodingUTF8
	case r.Features.NTFS:
		r.Encoding = EncodingUTF16
	default:
		r.Encoding = EncodingUnknown
	}

	r.Ranking = make([]Score, len(Candidates))
	for i, cand := range Candidates {
		r.Ranking[i] = Score{Candidate: cand, Score: r.Scores[cand]}
	}
	slices.SortStableFunc(r.Ranking, func(a, b Score) int {
		return b.Score - a.Score
	})

	top := r.Ranking[0].Score
	for _, s := range r.Ranking {
		if s.Score == top {
			r.Winners = append(r.Winners, s.Candidate)
		}
	}
	r.Unknown = len(r.Winners) == len(Candidates)

	return r
}
