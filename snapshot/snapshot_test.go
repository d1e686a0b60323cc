package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/archiveengine/tarcore/internal/identity"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &File{
		ScanSec:  1700000000,
		ScanNsec: 123,
		Entries: []Entry{
			{Name: "/var/log", MTimeSec: 1, MTimeNsec: 2, Dev: 3, Ino: 4},
			{Name: "/home/alice", MTimeSec: 5, MTimeNsec: 6, Dev: 7, Ino: 8, NFSRelaxed: true},
		},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Version != Version {
		t.Errorf("Version = %d, want %d", got.Version, Version)
	}
	if got.ScanSec != f.ScanSec || got.ScanNsec != f.ScanNsec {
		t.Errorf("scan time = %d.%d, want %d.%d", got.ScanSec, got.ScanNsec, f.ScanSec, f.ScanNsec)
	}
	if len(got.Entries) != len(f.Entries) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(f.Entries))
	}

	byName := make(map[string]Entry)
	for _, e := range got.Entries {
		byName[e.Name] = e
	}
	for _, want := range f.Entries {
		got, ok := byName[want.Name]
		if !ok {
			t.Fatalf("missing entry %q after round trip", want.Name)
		}
		if got != want {
			t.Errorf("entry %q = %+v, want %+v", want.Name, got, want)
		}
	}
}

func TestDecodeLegacyVersion0Grammar(t *testing.T) {
	legacy := "1700000000 0\n" +
		"1 3 4 /var/log\n" +
		"+5 7 8 /home/alice\n"
	f, err := Decode(strings.NewReader(legacy))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Version != 0 {
		t.Errorf("Version = %d, want 0", f.Version)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(f.Entries))
	}
	if f.Entries[0].Name != "/var/log" || f.Entries[0].MTimeNsec != 0 {
		t.Errorf("entry[0] = %+v", f.Entries[0])
	}
	if !f.Entries[1].NFSRelaxed || f.Entries[1].Name != "/home/alice" {
		t.Errorf("entry[1] = %+v, want NFSRelaxed name /home/alice", f.Entries[1])
	}
}

func TestDecodeRejectsEmptyFile(t *testing.T) {
	if _, err := Decode(strings.NewReader("")); err == nil {
		t.Fatal("expected error decoding an empty snapshot file")
	}
}

func TestDecisionString(t *testing.T) {
	cases := map[Decision]string{
		DirNew:       "new",
		DirUnchanged: "unchanged",
		DirChanged:   "changed",
		DirRenamed:   "renamed",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}

func TestDecideNewDirectory(t *testing.T) {
	got := Decide(nil, 1, 0, identity.DevIno{Dev: 1, Ino: 2}, false, nil, "/a")
	if got != DirNew {
		t.Errorf("Decide(nil prior) = %v, want DirNew", got)
	}
}

func TestDecideUnchanged(t *testing.T) {
	prior := &Entry{Dev: 1, Ino: 2, MTimeSec: 100, MTimeNsec: 5}
	got := Decide(prior, 100, 5, identity.DevIno{Dev: 1, Ino: 2}, false, nil, "/a")
	if got != DirUnchanged {
		t.Errorf("Decide = %v, want DirUnchanged", got)
	}
}

func TestDecideChangedOnMtime(t *testing.T) {
	prior := &Entry{Dev: 1, Ino: 2, MTimeSec: 100, MTimeNsec: 5}
	got := Decide(prior, 200, 5, identity.DevIno{Dev: 1, Ino: 2}, false, nil, "/a")
	if got != DirChanged {
		t.Errorf("Decide = %v, want DirChanged", got)
	}
}

func TestDecideNFSRelaxAllowsDevMismatch(t *testing.T) {
	prior := &Entry{Dev: 1, Ino: 2, MTimeSec: 100, MTimeNsec: 5, NFSRelaxed: true}
	got := Decide(prior, 100, 5, identity.DevIno{Dev: 99, Ino: 2}, true, nil, "/a")
	if got != DirUnchanged {
		t.Errorf("Decide with NFS relax = %v, want DirUnchanged", got)
	}
}

func TestDecideRenamedWhenIdentitySeenUnderOtherName(t *testing.T) {
	id := identity.DevIno{Dev: 1, Ino: 2}
	byIdentity := map[identity.Key]string{identity.KeyOf(id): "/old/name"}
	got := Decide(nil, 1, 0, id, false, byIdentity, "/new/name")
	if got != DirRenamed {
		t.Errorf("Decide = %v, want DirRenamed", got)
	}
}

func TestDecideChangedIdentityRenamedElsewhere(t *testing.T) {
	prior := &Entry{Dev: 1, Ino: 2, MTimeSec: 100, MTimeNsec: 0}
	id := identity.DevIno{Dev: 1, Ino: 2}
	byIdentity := map[identity.Key]string{identity.KeyOf(id): "/elsewhere"}
	got := Decide(prior, 200, 0, id, false, byIdentity, "/a")
	if got != DirRenamed {
		t.Errorf("Decide = %v, want DirRenamed when identity seen under a different current name", got)
	}
}

func TestEncodeDecodeRoundTripNameWithEmbeddedNewline(t *testing.T) {
	f := &File{
		ScanSec: 1,
		Entries: []Entry{
			{Name: "weird\nname\\with\ttabs", MTimeSec: 1, MTimeNsec: 2, Dev: 3, Ino: 4},
			{Name: "/ordinary/path", MTimeSec: 5, MTimeNsec: 6, Dev: 7, Ino: 8},
		},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lineCount := strings.Count(buf.String(), "\n")
	if lineCount != 4 { // version, timestamp, two entries
		t.Fatalf("encoded output has %d lines, want 4 (embedded newline must be escaped)", lineCount)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries, want 2 (an unescaped newline would split one entry into two)", len(got.Entries))
	}
	byName := make(map[string]Entry)
	for _, e := range got.Entries {
		byName[e.Name] = e
	}
	if _, ok := byName["weird\nname\\with\ttabs"]; !ok {
		t.Fatalf("name with embedded control characters did not survive round trip, got entries %+v", got.Entries)
	}
}

func TestEscapeNameRoundTripsControlBytes(t *testing.T) {
	name := "a\x01b\x7fc\\d\ne\rf\tg"
	got := unescapeName(escapeName(name))
	if got != name {
		t.Fatalf("unescapeName(escapeName(%q)) = %q, want %q", name, got, name)
	}
}

func TestComputeExtractPurgeFlagsDiskOnlyNames(t *testing.T) {
	records := []DumpdirRecord{
		{Kind: KindIncluded, Name: "kept.txt"},
		{Kind: KindDir, Name: "subdir"},
	}
	disk := []string{"kept.txt", "subdir", "deleted-since-dump.txt"}
	got := ComputeExtractPurge(disk, records)
	want := []string{"deleted-since-dump.txt"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("ComputeExtractPurge = %v, want %v", got, want)
	}
}

func TestComputeExtractPurgeEmptyWhenDiskMatchesRecords(t *testing.T) {
	records := []DumpdirRecord{{Kind: KindIncluded, Name: "a"}, {Kind: KindIncluded, Name: "b"}}
	got := ComputeExtractPurge([]string{"a", "b"}, records)
	if len(got) != 0 {
		t.Fatalf("ComputeExtractPurge = %v, want empty", got)
	}
}
