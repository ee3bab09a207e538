package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipsleuth/internal/config"
	"github.com/nguyengg/zipsleuth/internal/ziptest"
	"github.com/stretchr/testify/assert"
)

func writeArchive(t *testing.T, b *ziptest.Builder) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(name, b.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return name
}

func TestAnalyze_Execute(t *testing.T) {
	const ticks = 133000000001234567

	b := &ziptest.Builder{}
	b.Add(ziptest.Entry{Name: "docs/", Extra: ziptest.NTFS(ticks, ticks, ticks)})
	b.Add(ziptest.Entry{Name: "docs/report.txt", Method: 8, Data: []byte("xxxx"), Extra: ziptest.NTFS(ticks, ticks, ticks)})
	name := writeArchive(t, b)

	out := &bytes.Buffer{}
	c := &Analyze{ScanOptions: ScanOptions{NoProgress: true}, Verbose: true, out: out}
	c.Args.Files = append(c.Args.Files, flags.Filename(name))

	assert.NoError(t, c.Execute(nil))

	got := out.String()
	assert.Contains(t, got, name+": probable origin: ")
	assert.Contains(t, got, "scores: windows=8, winrar=6, git-archive=1, macos=0, linux=0, storing-tool=0")
	assert.Contains(t, got, "signals: ntfs, ntfs-nanosecond-fill, shared-root-folder")
	assert.Contains(t, got, "root folder: docs")
	assert.Contains(t, got, "encoding: UTF-16")
	assert.NotContains(t, got, "timezone:")
	assert.NotContains(t, got, "trailing:")
	assert.Contains(t, got, "2 local file headers, 2 central directory headers, EOCD declares 2 (consistent)")
	assert.Contains(t, got, "dir  docs/")
	assert.Contains(t, got, "file docs/report.txt")
	assert.Contains(t, got, "NTFS mtime=")
}

func TestAnalyze_Execute_TimezoneAndTrailingBytes(t *testing.T) {
	// 2024-01-01 12:00:00 local, written as 10:00:00 UTC in the extended timestamp.
	b := &ziptest.Builder{}
	b.Add(ziptest.Entry{
		Name:         "a.txt",
		Data:         []byte("a"),
		Extra:        ziptest.ExtendedTimestamp(1, 1704103200),
		Flags:        0x800,
		ModifiedDate: 0x5821,
		ModifiedTime: 0x6000,
	})

	name := filepath.Join(t.TempDir(), "archive.zip")
	assert.NoError(t, os.WriteFile(name, append(b.Bytes(), "junk"...), 0644))

	out := &bytes.Buffer{}
	c := &Analyze{ScanOptions: ScanOptions{NoProgress: true}, out: out}
	c.Args.Files = append(c.Args.Files, flags.Filename(name))

	assert.NoError(t, c.Execute(nil))

	got := out.String()
	assert.Contains(t, got, "timezone-difference")
	assert.Contains(t, got, "encoding: UTF-8")
	assert.Contains(t, got, "timezone: MS-DOS times are UTC+02:00 in 1/1 entries")
	assert.Contains(t, got, "(INCONSISTENT)")
	assert.Contains(t, got, "trailing: 4 B after the EOCD record")
	assert.Contains(t, got, "readers searching from the end find no EOCD record")
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "UTC+00:00", formatOffset(0))
	assert.Equal(t, "UTC+05:30", formatOffset(5*time.Hour+30*time.Minute))
	assert.Equal(t, "UTC-09:45", formatOffset(-9*time.Hour-45*time.Minute))
}

func TestAnalyze_Execute_Failures(t *testing.T) {
	notZip := filepath.Join(t.TempDir(), "not.zip")
	assert.NoError(t, os.WriteFile(notZip, []byte("hello, world"), 0644))

	out := &bytes.Buffer{}
	c := &Analyze{ScanOptions: ScanOptions{NoProgress: true}, out: out}
	c.Args.Files = append(c.Args.Files, flags.Filename(notZip), flags.Filename(filepath.Join(t.TempDir(), "missing.zip")))

	assert.EqualError(t, c.Execute(nil), "failed to inspect 2/2 files")
	assert.Empty(t, out.String())

	assert.Error(t, c.Execute([]string{"extra"}))
}

func TestAnalyze_Execute_InvalidMaxScanBytes(t *testing.T) {
	c := &Analyze{ScanOptions: ScanOptions{MaxScanBytes: "lots", NoProgress: true}, out: &bytes.Buffer{}}
	c.Args.Files = append(c.Args.Files, "archive.zip")

	assert.ErrorContains(t, c.Execute(nil), "invalid --max-scan-bytes")
}

func TestRecords_Execute(t *testing.T) {
	b := &ziptest.Builder{Comment: "archive comment"}
	b.Add(ziptest.Entry{Name: "a.txt", Data: []byte("hello"), DataDescriptor: true, Comment: "file comment", Extra: ziptest.UnixOwnership(1000, 100)})
	name := writeArchive(t, b)

	out := &bytes.Buffer{}
	c := &Records{ScanOptions: ScanOptions{NoProgress: true}, out: out}
	c.Args.Files = append(c.Args.Files, flags.Filename(name))

	assert.NoError(t, c.Execute(nil))

	got := out.String()
	assert.Contains(t, got, `0x00000000 local file header "a.txt"`)
	assert.Contains(t, got, "found by scanning, ends with data descriptor")
	assert.Contains(t, got, `central directory file header "a.txt"`)
	assert.Contains(t, got, `comment "file comment"`)
	assert.Contains(t, got, `comment "archive comment"`)
	assert.Contains(t, got, "extra unix ownership uid=1000 gid=100")
	assert.Contains(t, got, "1 entries on disk, 1 entries total")
}

func TestRecords_Execute_Partial(t *testing.T) {
	b := &ziptest.Builder{}
	b.Add(ziptest.Entry{Name: "a.txt", Data: []byte("hello")})
	data := b.Bytes()

	name := filepath.Join(t.TempDir(), "truncated.zip")
	assert.NoError(t, os.WriteFile(name, data[:len(data)-10], 0644))

	out := &bytes.Buffer{}
	c := &Records{ScanOptions: ScanOptions{NoProgress: true}, out: out}
	c.Args.Files = append(c.Args.Files, flags.Filename(name))

	assert.Error(t, c.Execute(nil))

	got := out.String()
	assert.Contains(t, got, `local file header "a.txt"`)
	assert.Contains(t, got, `central directory file header "a.txt"`)
	assert.Contains(t, got, "stopped: ")
}

func TestNewParser(t *testing.T) {
	p, err := NewParser()
	if !assert.NoError(t, err) {
		return
	}

	assert.NotNil(t, p.Find("analyze"))
	assert.NotNil(t, p.Find("records"))
	assert.NotNil(t, p.Find("a"))
}


func TestZipsleuth_Load(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")

	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, config.Name), []byte("[scan]\nmax-scan-bytes = 1 MiB\n"), 0644))
	t.Chdir(dir)
	t.Cleanup(func() {
		config.DefaultLoader.Profile = ""
		_ = config.LoadFile(filepath.Join(dir, "missing"))
	})

	assert.NoError(t, (&Zipsleuth{Profile: "archives"}).load())
	assert.Equal(t, "archives", config.DefaultLoader.Profile)
	assert.Equal(t, "archives", os.Getenv("AWS_PROFILE"))

	c, err := config.ForScan()
	assert.NoError(t, err)
	assert.Equal(t, 1<<20, c.MaxScanBytes)

	// an explicit file skips the search but still applies the profile.
	other := filepath.Join(t.TempDir(), "other.ini")
	assert.NoError(t, os.WriteFile(other, []byte("[scan]\nkeep-comment = true\n"), 0644))
	assert.NoError(t, (&Zipsleuth{Profile: "other", Config: flags.Filename(other)}).load())
	assert.Equal(t, "other", config.DefaultLoader.Profile)

	c, err = config.ForScan()
	assert.NoError(t, err)
	assert.Equal(t, 0, c.MaxScanBytes)
	assert.True(t, c.KeepComment)

	assert.Error(t, (&Zipsleuth{Config: flags.Filename(filepath.Join(dir, "missing"))}).load())
}
