package sparse

import (
	"bytes"
	"io"
	"testing"
)

// memWriteSeeker is a minimal io.WriteSeeker backed by a byte slice, for
// exercising Extract's hole-zero-filling without touching a real file.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func TestExtractZeroFillsHoles(t *testing.T) {
	entries := []Entry{{0, 4}, {12, 4}}
	payload := bytes.NewReader([]byte("aaaabbbb"))
	dst := &memWriteSeeker{}

	if err := Extract(dst, payload, entries, 16); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "aaaa\x00\x00\x00\x00\x00\x00\x00\x00bbbb"
	if string(dst.buf) != want {
		t.Fatalf("Extract output = %q, want %q", dst.buf, want)
	}
}

func TestExtractTrailingHoleExtendsToRealSize(t *testing.T) {
	entries := []Entry{{0, 4}}
	payload := bytes.NewReader([]byte("data"))
	dst := &memWriteSeeker{}

	if err := Extract(dst, payload, entries, 10); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(dst.buf) != 10 {
		t.Fatalf("output length = %d, want 10", len(dst.buf))
	}
	if string(dst.buf[:4]) != "data" {
		t.Fatalf("data prefix = %q, want %q", dst.buf[:4], "data")
	}
	for i := 4; i < 10; i++ {
		if dst.buf[i] != 0 {
			t.Fatalf("expected zero byte at offset %d, got %d", i, dst.buf[i])
		}
	}
}

func TestExtractEmptyFile(t *testing.T) {
	dst := &memWriteSeeker{}
	if err := Extract(dst, bytes.NewReader(nil), nil, 0); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(dst.buf) != 0 {
		t.Fatalf("expected empty output, got %q", dst.buf)
	}
}

func TestWritePayloadCopiesExactBytes(t *testing.T) {
	var buf bytes.Buffer
	n, err := WritePayload(&buf, bytes.NewReader([]byte("payload bytes")))
	if err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if n != int64(len("payload bytes")) {
		t.Fatalf("WritePayload copied %d bytes, want %d", n, len("payload bytes"))
	}
	if buf.String() != "payload bytes" {
		t.Fatalf("WritePayload content = %q", buf.String())
	}
}
