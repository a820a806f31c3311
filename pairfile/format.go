package pairfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/internal/hash"
)

// Compression selects the per-frame block compression.
type Compression uint8

const (
	// CompressionNone stores frames raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression, fast with a modest ratio.
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd block compression, slower with a better ratio.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

const (
	version       = 1
	headerSize    = 8  // magic(4) + version(1) + compression(1) + reserved(2)
	frameHeadSize = 12 // rawLen(4) + compressedLen(4) + crc32c(4)

	// maxFrameSize bounds a single decoded frame. A frame this large means
	// corruption, not data.
	maxFrameSize = 64 << 20
)

var magic = [4]byte{'L', 'G', 'P', 'F'}

var (
	// ErrBadMagic means the blob is not a pair file.
	ErrBadMagic = errors.New("pairfile: bad magic")
	// ErrBadVersion means the pair file was written by an incompatible
	// format revision.
	ErrBadVersion = errors.New("pairfile: unsupported version")
	// ErrChecksum means a frame failed its integrity check.
	ErrChecksum = errors.New("pairfile: frame checksum mismatch")
	// ErrCorrupt means a structural invariant of the format was violated.
	ErrCorrupt = errors.New("pairfile: corrupt frame")
)

func encodeHeader(c Compression) []byte {
	h := make([]byte, headerSize)
	copy(h, magic[:])
	h[4] = version
	h[5] = byte(c)
	return h
}

func decodeHeader(h []byte) (Compression, error) {
	if len(h) < headerSize || [4]byte(h[:4]) != magic {
		return 0, ErrBadMagic
	}
	if h[4] != version {
		return 0, fmt.Errorf("%w: %d", ErrBadVersion, h[4])
	}
	c := Compression(h[5])
	switch c {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return c, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, h[5])
	}
}

// appendPair appends the binary encoding of one scored pair:
// each id as [datasetLen uint16][dataset][key uint64], then the score as
// raw float64 bits so non-finite scores survive the round trip.
func appendPair(buf []byte, sp core.ScoredPair) []byte {
	buf = appendID(buf, sp.Pair.Left)
	buf = appendID(buf, sp.Pair.Right)
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(sp.Score))
}

func appendID(buf []byte, id core.RecordID) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(id.Dataset)))
	buf = append(buf, id.Dataset...)
	return binary.LittleEndian.AppendUint64(buf, id.Key)
}

func readPair(buf []byte) (core.ScoredPair, []byte, error) {
	left, buf, err := readID(buf)
	if err != nil {
		return core.ScoredPair{}, nil, err
	}
	right, buf, err := readID(buf)
	if err != nil {
		return core.ScoredPair{}, nil, err
	}
	if len(buf) < 8 {
		return core.ScoredPair{}, nil, ErrCorrupt
	}
	score := math.Float64frombits(binary.LittleEndian.Uint64(buf))
	return core.ScoredPair{
		Pair:  core.Pair{Left: left, Right: right},
		Score: score,
	}, buf[8:], nil
}

func readID(buf []byte) (core.RecordID, []byte, error) {
	if len(buf) < 2 {
		return core.RecordID{}, nil, ErrCorrupt
	}
	n := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n+8 {
		return core.RecordID{}, nil, ErrCorrupt
	}
	id := core.RecordID{
		Dataset: string(buf[:n]),
		Key:     binary.LittleEndian.Uint64(buf[n:]),
	}
	return id, buf[n+8:], nil
}

// compressFrame returns the frame payload as stored on disk. When the
// compressed form would not be smaller, the raw bytes are stored instead
// and the frame head marks them as uncompressed.
func compressFrame(c Compression, enc *zstd.Encoder, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("pairfile: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(raw) {
			return raw, nil // incompressible, stored raw
		}
		return dst[:n], nil
	case CompressionZstd:
		dst := enc.EncodeAll(raw, nil)
		if len(dst) >= len(raw) {
			return raw, nil
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("pairfile: unknown compression %d", c)
	}
}

func decompressFrame(c Compression, dec *zstd.Decoder, payload []byte, rawLen int) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("pairfile: lz4 decompress: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("%w: lz4 frame decoded to %d bytes, want %d", ErrCorrupt, n, rawLen)
		}
		return dst, nil
	case CompressionZstd:
		dst, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("pairfile: zstd decompress: %w", err)
		}
		if len(dst) != rawLen {
			return nil, fmt.Errorf("%w: zstd frame decoded to %d bytes, want %d", ErrCorrupt, len(dst), rawLen)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("pairfile: unknown compression %d", c)
	}
}

func frameChecksum(payload []byte) uint32 {
	return hash.CRC32C(payload)
}
