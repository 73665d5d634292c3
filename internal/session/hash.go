package session

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
)

// GeneratePointsHash fingerprints a point sequence for unsaved-changes
// detection. The digest is order-sensitive and covers lat, lng, type and
// timestamp at full float64 bit precision; any other field is ignored. It is a
// change detector, not a security primitive, so a fast FNV-1a rolling hash
// rendered in base-36 is enough.
func GeneratePointsHash(points []TrackedPoint) string {
	h := fnv.New64a()
	var buf [8]byte

	for _, p := range points {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Point.Lat))
		_, _ = h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Point.Lng))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(p.Type))
		_, _ = h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(p.Timestamp))
		_, _ = h.Write(buf[:])
	}

	return strconv.FormatUint(h.Sum64(), 36)
}
