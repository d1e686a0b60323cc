package sectionreader

import (
	"bytes"
	"io"
	"testing"

	"github.com/archiveengine/tarcore/sparse"
)

func TestSparseReaderInterleavesDataAndHoles(t *testing.T) {
	entries := []sparse.Entry{{Offset: 0, Length: 4}, {Offset: 12, Length: 4}}
	payload := bytes.NewReader([]byte("aaaabbbb"))
	r := NewSparseReader(entries, 16, payload)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := "aaaa\x00\x00\x00\x00\x00\x00\x00\x00bbbb"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSparseReaderAllData(t *testing.T) {
	entries := []sparse.Entry{{Offset: 0, Length: 8}}
	payload := bytes.NewReader([]byte("12345678"))
	r := NewSparseReader(entries, 8, payload)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "12345678" {
		t.Fatalf("got %q, want %q", got, "12345678")
	}
}

func TestSparseReaderAllHole(t *testing.T) {
	r := NewSparseReader(nil, 10, bytes.NewReader(nil))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d bytes, want 10", len(got))
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestSparseReaderZeroRealSize(t *testing.T) {
	r := NewSparseReader(nil, 0, bytes.NewReader(nil))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestSparseReaderReadsSmallerThanSegment(t *testing.T) {
	entries := []sparse.Entry{{Offset: 0, Length: 8}}
	payload := bytes.NewReader([]byte("abcdefgh"))
	r := NewSparseReader(entries, 8, payload)

	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || string(buf) != "abc" {
		t.Fatalf("Read = (%d, %q), want (3, %q)", n, buf, "abc")
	}
}
