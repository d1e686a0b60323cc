package snapshot

import (
	"bytes"
	"sort"
)

// DumpdirRecordKind marks each name in a TypeIncrementalDir entry's
// payload: "Y" the name is included in this dump, "N" the name existed
// before but is excluded this time, "D" the name is itself a directory
// recursed into separately.
type DumpdirRecordKind byte

const (
	KindIncluded DumpdirRecordKind = 'Y'
	KindExcluded DumpdirRecordKind = 'N'
	KindDir      DumpdirRecordKind = 'D'
)

// DumpdirRecord is one NUL-terminated entry of a dumpdir body.
type DumpdirRecord struct {
	Kind DumpdirRecordKind
	Name string
}

// EncodeDumpdir serializes records, sorted by name, into the raw
// dumpdir body: each record is the kind byte immediately followed by
// the name and a NUL ("KINDNAME\x00"), and the whole body ends with one
// extra NUL, which EncodeDumpdir appends itself.
func EncodeDumpdir(records []DumpdirRecord) []byte {
	sorted := append([]DumpdirRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	for _, r := range sorted {
		buf.WriteByte(byte(r.Kind))
		buf.WriteString(r.Name)
		buf.WriteByte(0)
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

// DecodeDumpdir parses a raw dumpdir body back into records.
func DecodeDumpdir(body []byte) []DumpdirRecord {
	var records []DumpdirRecord
	for len(body) > 0 && body[0] != 0 {
		kind := DumpdirRecordKind(body[0])
		rest := body[1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			break
		}
		records = append(records, DumpdirRecord{Kind: kind, Name: string(rest[:nul])})
		body = rest[nul+1:]
	}
	return records
}
