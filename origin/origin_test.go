package origin

import (
	"testing"
	"time"

	"github.com/nguyengg/zipsleuth/internal/ziptest"
	"github.com/nguyengg/zipsleuth/zip/extra"
	"github.com/stretchr/testify/assert"
)

func classify(w Weights, entries ...Entry) Report {
	c := NewClassifier(w)
	for _, e := range entries {
		c.Observe(e)
	}
	return c.Finalize()
}

func TestClassify_NoSignals(t *testing.T) {
	r := classify(DefaultWeights(), Entry{Name: "a.txt", Method: 0, CompressedSize: 5, UncompressedSize: 5})

	assert.Equal(t, Features{}, r.Features)
	for _, cand := range Candidates {
		assert.Equalf(t, 0, r.Scores[cand], "score of %s", cand)
	}
	assert.True(t, r.Unknown)
	assert.Len(t, r.Winners, len(Candidates))
	assert.Equal(t, "origin unknown", r.Verdict())
}

func TestClassify_MacOSResourceFolder(t *testing.T) {
	r := classify(DefaultWeights(), Entry{Name: "__MACOSX/._a.txt", Method: 0, CompressedSize: 120, UncompressedSize: 120})

	assert.True(t, r.Features.MacOSResourceFolder)
	assert.False(t, r.Features.SharedRootFolder)
	assert.False(t, r.Unknown)
	assert.Equal(t, []Candidate{MacOS}, r.Winners)
	assert.Equal(t, 10, r.Scores[MacOS])
	assert.Equal(t, "probable origin: macOS Archive Utility or similar macOS tool", r.Verdict())
}

func TestClassify_MacOSFolderAppliedOnce(t *testing.T) {
	r := classify(DefaultWeights(),
		Entry{Name: "__MACOSX/"},
		Entry{Name: "__MACOSX/._a.txt"},
		Entry{Name: "__MACOSX/._b.txt"},
	)

	assert.Equal(t, 10, r.Scores[MacOS])
}

func TestClassify_Windows(t *testing.T) {
	fine := extra.Decode(ziptest.NTFS(133000000001234567, 133000000001234567, 133000000001234567))
	coarse := extra.Decode(ziptest.NTFS(133000000000000000, 133000000000000000, 133000000000000000))

	r := classify(DefaultWeights(),
		Entry{Name: "report.docx", Method: 8, CompressedSize: 10, UncompressedSize: 20, Extras: fine},
		Entry{Name: "notes.txt", Method: 8, CompressedSize: 10, UncompressedSize: 20, Extras: coarse},
	)

	assert.True(t, r.Features.NTFS)
	assert.True(t, r.Features.NTFSNanosecondFill)
	assert.Equal(t, 3+1+3, r.Scores[Windows])
	assert.Equal(t, 2+1+2, r.Scores[WinRAR])
	assert.Equal(t, []Candidate{Windows}, r.Winners)
}

func TestClassify_WinRAR(t *testing.T) {
	raw := []byte("r\xe9sum\xe9.txt")
	extras := extra.Decode(append(ziptest.NTFS(1, 1, 1), ziptest.UnicodePath(raw, "résumé.txt")...))

	r := classify(DefaultWeights(), Entry{Name: "résumé.txt", Method: 8, Extras: extras})

	assert.True(t, r.Features.UnicodePath)
	assert.True(t, r.Features.UTF8Names)
	assert.Equal(t, []Candidate{WinRAR}, r.Winners)
}

func TestClassify_Linux(t *testing.T) {
	// Info-ZIP writes mtime and atime in local headers plus a ux field with 4-byte ids.
	extras := extra.Decode(append(ziptest.ExtendedTimestamp(3, 1700000000, 1700000001), ziptest.UnixOwnership(1000, 1000)...))

	r := classify(DefaultWeights(),
		Entry{Name: "a.txt", Method: 8, Extras: extras},
		Entry{Name: "b.txt", Method: 8, Extras: extras},
	)

	assert.True(t, r.Features.ExtendedTimestamp)
	assert.True(t, r.Features.UnixOwnership)
	assert.Equal(t, 6, r.Scores[Linux])
	assert.Equal(t, 2, r.Scores[MacOS])
	assert.Equal(t, []Candidate{Linux}, r.Winners)
}

func TestClassify_ExtendedTimestampBySize(t *testing.T) {
	nineteen := extra.Decode(ziptest.Field(extra.ExtendedTimestampID, make([]byte, 19)...))
	five := extra.Decode(ziptest.ExtendedTimestamp(1, 1))

	assert.Equal(t, 2, classify(DefaultWeights(), Entry{Name: "a", Extras: nineteen}).Scores[MacOS])

	r := classify(DefaultWeights(), Entry{Name: "a", Extras: five})
	assert.True(t, r.Features.ExtendedTimestamp)
	assert.True(t, r.Unknown, "sizes without a weight contribute nothing")
}

func TestClassify_Ties(t *testing.T) {
	w := DefaultWeights()
	w.UnixOwnership = Contribution{MacOS: 2, Linux: 2}

	r := classify(w, Entry{Name: "a", Extras: extra.Decode(ziptest.UnixOwnership(0, 0))})
	assert.False(t, r.Unknown)
	assert.Equal(t, []Candidate{MacOS, Linux}, r.Winners)
	assert.Equal(t, "tie between 2 candidates: macOS Archive Utility or similar macOS tool; Unix/Linux Info-ZIP", r.Verdict())

	w.UnixOwnership = Contribution{Windows: 1, WinRAR: 1, MacOS: 1, Linux: 1, GitArchive: 1}
	r = classify(w, Entry{Name: "a", Extras: extra.Decode(ziptest.UnixOwnership(0, 0))})
	assert.False(t, r.Unknown)
	assert.Len(t, r.Winners, 5)

	w.UnixOwnership = Contribution{Windows: 1, WinRAR: 1, MacOS: 1, Linux: 1, GitArchive: 1, StoringTool: 1}
	r = classify(w, Entry{Name: "a", Extras: extra.Decode(ziptest.UnixOwnership(0, 0))})
	assert.True(t, r.Unknown, "every tracked candidate tied above zero is still unknown")
}

func TestClassify_AllStored(t *testing.T) {
	stored := func(name string, size uint64) Entry {
		return Entry{Name: name, Method: 0, CompressedSize: size, UncompressedSize: size}
	}

	r := classify(DefaultWeights(), stored("a", 1), stored("b", 1), stored("empty", 0))
	assert.True(t, r.Features.AllStored)
	assert.Equal(t, []Candidate{StoringTool}, r.Winners)

	r = classify(DefaultWeights(), stored("a", 1), Entry{Name: "b", Method: 8, CompressedSize: 1, UncompressedSize: 5})
	assert.False(t, r.Features.AllStored)

	r = classify(DefaultWeights(), stored("a", 1))
	assert.False(t, r.Features.AllStored, "a single entry is not enough evidence")
}

func TestClassify_SharedRootFolder(t *testing.T) {
	r := classify(DefaultWeights(),
		Entry{Name: "project-1.0/"},
		Entry{Name: "project-1.0/README.md", Method: 8, UncompressedSize: 10},
		Entry{Name: "project-1.0/src/main.go", Method: 8, UncompressedSize: 10},
		Entry{Name: "__MACOSX/project-1.0/._README.md"},
	)

	assert.True(t, r.Features.SharedRootFolder)
	assert.Equal(t, "project-1.0", r.RootFolder)
	assert.Equal(t, 1, r.Scores[GitArchive])
	assert.Equal(t, []Candidate{MacOS}, r.Winners)

	r = classify(DefaultWeights(), Entry{Name: "a/x"}, Entry{Name: "b/y"})
	assert.False(t, r.Features.SharedRootFolder)

	r = classify(DefaultWeights(), Entry{Name: "a/x"}, Entry{Name: "top-level.txt"})
	assert.False(t, r.Features.SharedRootFolder)
}

func TestClassify_Deterministic(t *testing.T) {
	entries := []Entry{
		{Name: "a/x", Extras: extra.Decode(ziptest.UnixOwnership(1, 1)), DataDescriptor: true},
		{Name: "a/y", Extras: extra.Decode(ziptest.NTFS(1, 1, 1))},
	}

	first := classify(DefaultWeights(), entries...)
	for range 20 {
		assert.Equal(t, first, classify(DefaultWeights(), entries...))
	}

	c := NewClassifier(DefaultWeights())
	for _, e := range entries {
		c.Observe(e)
	}
	assert.Equal(t, c.Finalize(), c.Finalize())
}

func TestClassify_ScoresNeverNegative(t *testing.T) {
	w := DefaultWeights()
	w.NTFS = Contribution{Windows: -5}
	assert.Error(t, w.Validate())

	r := classify(w, Entry{Name: "a", Extras: extra.Decode(ziptest.NTFS(1, 1, 1))})
	for _, s := range r.Ranking {
		assert.GreaterOrEqual(t, s.Score, 0)
	}
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.ExtendedTimestampBySize[13] = Contribution{"amiga": 1}
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.MinStoredEntries = -1
	assert.Error(t, w.Validate())
}

func TestWeights_Clone(t *testing.T) {
	w := DefaultWeights()
	c := w.Clone()
	c.NTFS[Windows] = 100
	c.ExtendedTimestampBySize[9][Linux] = 100

	assert.Equal(t, 3, w.NTFS[Windows])
	assert.Equal(t, 2, w.ExtendedTimestampBySize[9][Linux])
}

func TestClassify_TimezoneOffset(t *testing.T) {
	utc := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	ut := func(t time.Time) []extra.Field {
		return extra.Decode(ziptest.ExtendedTimestamp(1, uint32(t.Unix())))
	}

	// Info-ZIP rounds odd seconds up when writing MS-DOS times.
	r := classify(DefaultWeights(),
		Entry{Name: "a", Modified: utc.Add(2*time.Hour + time.Second), Extras: ut(utc)},
		Entry{Name: "b", Modified: utc.Add(2 * time.Hour), Extras: ut(utc)},
		Entry{Name: "c", Modified: utc, Extras: ut(utc)},
	)
	assert.True(t, r.Features.TimezoneDifference)
	assert.Equal(t, 2*time.Hour, r.TimezoneOffset)
	assert.Equal(t, 2, r.TimezoneSamples)

	// India is UTC+05:30; NTFS times are used when there is no extended timestamp.
	r = classify(DefaultWeights(), Entry{
		Name:     "a",
		Modified: utc.Add(5*time.Hour + 30*time.Minute),
		Extras:   extra.Decode(ziptest.NTFS(extra.NTFSTicks(utc), 0, 0)),
	})
	assert.True(t, r.Features.TimezoneDifference)
	assert.Equal(t, 5*time.Hour+30*time.Minute, r.TimezoneOffset)

	// ties go to the offset observed first.
	r = classify(DefaultWeights(),
		Entry{Name: "a", Modified: utc.Add(-7 * time.Hour), Extras: ut(utc)},
		Entry{Name: "b", Modified: utc, Extras: ut(utc)},
	)
	assert.Equal(t, -7*time.Hour, r.TimezoneOffset)
	assert.Equal(t, 1, r.TimezoneSamples)
}

func TestClassify_NoTimezoneOffset(t *testing.T) {
	utc := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	ut := extra.Decode(ziptest.ExtendedTimestamp(1, uint32(utc.Unix())))

	tests := []struct {
		name  string
		entry Entry
	}{
		{name: "same time", entry: Entry{Name: "a", Modified: utc, Extras: ut}},
		{name: "no extra time", entry: Entry{Name: "a", Modified: utc.Add(time.Hour)}},
		{name: "no MS-DOS time", entry: Entry{Name: "a", Extras: ut}},
		{name: "not a whole offset", entry: Entry{Name: "a", Modified: utc.Add(37 * time.Minute), Extras: ut}},
		{name: "beyond any timezone", entry: Entry{Name: "a", Modified: utc.Add(-15 * time.Hour), Extras: ut}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := classify(DefaultWeights(), tt.entry)
			assert.False(t, r.Features.TimezoneDifference)
			assert.Equal(t, time.Duration(0), r.TimezoneOffset)
		})
	}
}

func TestClassify_Encoding(t *testing.T) {
	tests := []struct {
		name     string
		entries  []Entry
		expected Encoding
	}{
		{
			name:     "utf-8 flag",
			entries:  []Entry{{Name: "résumé.txt", Flags: 0x800, Extras: extra.Decode(ziptest.NTFS(1, 1, 1))}},
			expected: EncodingUTF8,
		},
		{
			name:     "unicode path",
			entries:  []Entry{{Name: "résumé.txt", Extras: extra.Decode(ziptest.UnicodePath([]byte("r\xe9sum\xe9.txt"), "résumé.txt"))}},
			expected: EncodingUTF8,
		},
		{
			name:     "macOS resource folder",
			entries:  []Entry{{Name: "a.txt"}, {Name: "__MACOSX/._a.txt"}},
			expected: EncodingUTF8,
		},
		{
			name:     "ntfs",
			entries:  []Entry{{Name: "a.txt", Extras: extra.Decode(ziptest.NTFS(1, 1, 1))}},
			expected: EncodingUTF16,
		},
		{
			name:     "nothing to go by",
			entries:  []Entry{{Name: "a.txt", Extras: extra.Decode(ziptest.UnixOwnership(0, 0))}},
			expected: EncodingUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(DefaultWeights(), tt.entries...).Encoding)
		})
	}
}
