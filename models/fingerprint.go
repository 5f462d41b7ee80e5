package models

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
)

// ComputeFingerprint returns an FNV-64a digest of the record's content
// fields. Every field is written with a presence flag and a length prefix,
// so field boundaries, row order and hemisphere order all affect the result.
// RunID and LastModified are not part of it.
func (r *ScrapeRecord) ComputeFingerprint() uint64 {
	h := fnv.New64a()

	writeOpt(h, r.NewsTitle)
	writeOpt(h, r.NewsParagraph)
	writeOpt(h, r.FeaturedImage)

	if r.Facts == nil {
		writeLen(h, -1)
	} else {
		writeStr(h, r.Facts.Header[0])
		writeStr(h, r.Facts.Header[1])
		writeLen(h, len(r.Facts.Rows))
		for _, row := range r.Facts.Rows {
			writeStr(h, row.Description)
			writeStr(h, row.Value)
		}
	}

	writeLen(h, len(r.Hemispheres))
	for _, hm := range r.Hemispheres {
		writeOpt(h, hm.Title)
		writeOpt(h, hm.ImgURL)
	}
	return h.Sum64()
}

func writeLen(h hash.Hash64, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(int64(n)))
	h.Write(buf[:])
}

func writeStr(h hash.Hash64, s string) {
	writeLen(h, len(s))
	h.Write([]byte(s))
}

// writeOpt distinguishes an absent field from an empty one.
func writeOpt(h hash.Hash64, s *string) {
	if s == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	writeStr(h, *s)
}
