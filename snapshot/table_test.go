package snapshot

import (
	"testing"

	"github.com/archiveengine/tarcore/internal/identity"
)

func openTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := OpenTable("", 64)
	if err != nil {
		t.Fatalf("OpenTable: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestTableStoreLookupRoundTrip(t *testing.T) {
	tbl := openTestTable(t)
	key := identity.KeyOf(identity.DevIno{Dev: 1, Ino: 2})
	entry := Entry{Name: "/var/log", MTimeSec: 100, MTimeNsec: 200, Dev: 1, Ino: 2}

	if err := tbl.Store(key, entry); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok := tbl.Lookup(key)
	if !ok {
		t.Fatal("expected Lookup to find the stored entry")
	}
	if got != entry {
		t.Errorf("Lookup = %+v, want %+v", got, entry)
	}
}

func TestTableLookupMissUntilStored(t *testing.T) {
	tbl := openTestTable(t)
	key := identity.KeyOf(identity.DevIno{Dev: 9, Ino: 9})
	if _, ok := tbl.Lookup(key); ok {
		t.Fatal("expected a miss for a key never stored")
	}
}

func TestTablePurgeRemovesEntry(t *testing.T) {
	tbl := openTestTable(t)
	key := identity.KeyOf(identity.DevIno{Dev: 3, Ino: 4})
	if err := tbl.Store(key, Entry{Name: "/tmp"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := tbl.Purge(key); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok := tbl.Lookup(key); ok {
		t.Fatal("expected Lookup to miss after Purge")
	}
}

func TestTableStoreSupersedesPriorEntry(t *testing.T) {
	tbl := openTestTable(t)
	key := identity.KeyOf(identity.DevIno{Dev: 5, Ino: 6})
	tbl.Store(key, Entry{Name: "/a", MTimeSec: 1})
	tbl.Store(key, Entry{Name: "/a", MTimeSec: 2})

	got, ok := tbl.Lookup(key)
	if !ok {
		t.Fatal("expected Lookup to find the entry")
	}
	if got.MTimeSec != 2 {
		t.Errorf("MTimeSec = %d, want 2 (latest write should win)", got.MTimeSec)
	}
}
