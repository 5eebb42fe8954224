package coldstate

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// formatVersion is the first byte of every payload. Bumping it is a
// forward-compatibility signal: engines that don't understand a newer
// version must refuse to open the log rather than guess at its layout.
const formatVersion = 1

// Record is one durable trajectory entry, per spec §4.2's TrajectoryRecord:
// namespace, object_id, point, metadata, timestamp. It is immutable once
// written.
type Record struct {
	Namespace string
	ObjectID  string
	X, Y, Z   float64
	Metadata  []byte
	Timestamp int64 // wall clock, nanoseconds since epoch
}

// encode serializes r into the versioned payload format: a version byte
// followed by length-prefixed strings/bytes and fixed-width little-endian
// floats, per spec §9 ("fixed-width native floats plus length-prefixed
// strings is sufficient and portable if byte order is fixed little-endian").
func (r Record) encode() []byte {
	size := 1 + // version
		4 + len(r.Namespace) +
		4 + len(r.ObjectID) +
		8 + // timestamp
		8*3 + // x, y, z
		4 + len(r.Metadata)
	buf := make([]byte, size)
	i := 0
	buf[i] = formatVersion
	i++
	i = putBytes(buf, i, []byte(r.Namespace))
	i = putBytes(buf, i, []byte(r.ObjectID))
	binary.LittleEndian.PutUint64(buf[i:], uint64(r.Timestamp))
	i += 8
	i = putFloat(buf, i, r.X)
	i = putFloat(buf, i, r.Y)
	i = putFloat(buf, i, r.Z)
	putBytes(buf, i, r.Metadata)
	return buf
}

func putBytes(buf []byte, i int, b []byte) int {
	binary.LittleEndian.PutUint32(buf[i:], uint32(len(b)))
	i += 4
	copy(buf[i:], b)
	return i + len(b)
}

func putFloat(buf []byte, i int, f float64) int {
	binary.LittleEndian.PutUint64(buf[i:], math.Float64bits(f))
	return i + 8
}

// decodeRecord parses a payload produced by encode. It returns an error for
// a version it doesn't understand or a payload too short to be well-formed;
// ReadAll returns that error to its caller unchanged.
func decodeRecord(payload []byte) (Record, error) {
	if len(payload) < 1 {
		return Record{}, io.ErrUnexpectedEOF
	}
	version := payload[0]
	if version != formatVersion {
		return Record{}, fmt.Errorf("coldstate: unsupported record version %d", version)
	}
	i := 1

	ns, i, err := getBytes(payload, i)
	if err != nil {
		return Record{}, err
	}
	id, i, err := getBytes(payload, i)
	if err != nil {
		return Record{}, err
	}
	if i+8 > len(payload) {
		return Record{}, io.ErrUnexpectedEOF
	}
	ts := int64(binary.LittleEndian.Uint64(payload[i:]))
	i += 8

	x, i, err := getFloat(payload, i)
	if err != nil {
		return Record{}, err
	}
	y, i, err := getFloat(payload, i)
	if err != nil {
		return Record{}, err
	}
	z, i, err := getFloat(payload, i)
	if err != nil {
		return Record{}, err
	}
	metadata, i, err := getBytes(payload, i)
	if err != nil {
		return Record{}, err
	}
	if i != len(payload) {
		return Record{}, fmt.Errorf("coldstate: %d trailing bytes in record payload", len(payload)-i)
	}

	return Record{
		Namespace: string(ns),
		ObjectID:  string(id),
		X:         x, Y: y, Z: z,
		Metadata:  metadata,
		Timestamp: ts,
	}, nil
}

func getBytes(buf []byte, i int) ([]byte, int, error) {
	if i+4 > len(buf) {
		return nil, 0, io.ErrUnexpectedEOF
	}
	n := int(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	if n < 0 || i+n > len(buf) {
		return nil, 0, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	copy(out, buf[i:i+n])
	return out, i + n, nil
}

func getFloat(buf []byte, i int) (float64, int, error) {
	if i+8 > len(buf) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[i:])), i + 8, nil
}

// frame wraps an encoded payload in the on-disk length+crc envelope:
// [record_len u32 LE][payload][crc32 u32 LE], per spec §4.2.
func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload)+4)
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(out[4+len(payload):], crc)
	return out
}
