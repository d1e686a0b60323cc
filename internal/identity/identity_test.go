package identity

import "testing"

func TestKeyOfDeterministic(t *testing.T) {
	di := DevIno{Dev: 42, Ino: 7}
	if KeyOf(di) != KeyOf(di) {
		t.Fatal("KeyOf should be deterministic for the same input")
	}
}

func TestKeyOfDistinguishesDevAndIno(t *testing.T) {
	a := KeyOf(DevIno{Dev: 1, Ino: 2})
	b := KeyOf(DevIno{Dev: 2, Ino: 1})
	if a == b {
		t.Fatal("expected different keys for swapped dev/ino")
	}
	c := KeyOf(DevIno{Dev: 1, Ino: 3})
	if a == c {
		t.Fatal("expected different keys for a different inode")
	}
}

func TestStatPathOnRealFile(t *testing.T) {
	di, err := StatPath(t.TempDir())
	if err != nil {
		t.Fatalf("StatPath: %v", err)
	}
	if di.Ino == 0 {
		t.Fatal("expected a nonzero inode for a real directory")
	}
}
