// Package pairfile reads and writes spill files of scored pairs.
//
// Comparing blocks can emit far more pairs than fit in memory. A pair file
// is the on-disk shape of that stream: a small header followed by framed
// batches of binary-encoded pairs, each frame checksummed with CRC32C and
// optionally block-compressed. Scores are stored as raw float64 bits, so
// the non-finite scores the comparison model deliberately produces survive
// the round trip.
//
// Readers are restartable. Pairs returns a sequence that reopens the blob
// on every range over it, which is exactly what the clustering stage needs
// when it consumes its input more than once.
package pairfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/linkgo/blobstore"
	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/resource"
)

const defaultFrameSize = 256 << 10

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	compression Compression
	frameSize   int
	controller  *resource.Controller
}

// WithCompression selects the frame compression. The default is zstd.
func WithCompression(c Compression) WriterOption {
	return func(o *writerOptions) { o.compression = c }
}

// WithFrameSize sets the uncompressed size at which a frame is cut.
func WithFrameSize(n int) WriterOption {
	return func(o *writerOptions) { o.frameSize = n }
}

// WithController reserves the writer's frame buffers against the run's
// memory ceiling, released again on Close.
func WithController(c *resource.Controller) WriterOption {
	return func(o *writerOptions) { o.controller = c }
}

// Writer streams scored pairs into the pair file format.
type Writer struct {
	w        *bufio.Writer
	opts     writerOptions
	enc      *zstd.Encoder
	buf      []byte
	pairs    uint64
	reserved int64
	err      error
}

// NewWriter writes the file header and returns a Writer on top of w.
// The caller owns closing w; Close only flushes the Writer's own state.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	o := writerOptions{compression: CompressionZstd, frameSize: defaultFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.frameSize <= 0 || o.frameSize > maxFrameSize {
		return nil, fmt.Errorf("pairfile: frame size %d out of range", o.frameSize)
	}

	// Raw buffer plus a same-sized compressed payload bound.
	reserve := 2 * int64(o.frameSize)
	if err := o.controller.ReserveMemory(reserve); err != nil {
		return nil, fmt.Errorf("pairfile: frame buffer: %w", err)
	}

	pw := &Writer{
		w:        bufio.NewWriter(w),
		opts:     o,
		buf:      make([]byte, 0, o.frameSize),
		reserved: reserve,
	}
	if o.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			pw.release()
			return nil, fmt.Errorf("pairfile: zstd encoder: %w", err)
		}
		pw.enc = enc
	}
	if _, err := pw.w.Write(encodeHeader(o.compression)); err != nil {
		pw.release()
		return nil, err
	}
	return pw, nil
}

func (pw *Writer) release() {
	pw.opts.controller.ReleaseMemory(pw.reserved)
	pw.reserved = 0
}

// Write appends one pair. Pairs are buffered and written a frame at a time.
func (pw *Writer) Write(sp core.ScoredPair) error {
	if pw.err != nil {
		return pw.err
	}
	pw.buf = appendPair(pw.buf, sp)
	pw.pairs++
	if len(pw.buf) >= pw.opts.frameSize {
		return pw.flushFrame()
	}
	return nil
}

// Written reports the number of pairs accepted so far.
func (pw *Writer) Written() uint64 { return pw.pairs }

func (pw *Writer) flushFrame() error {
	if len(pw.buf) == 0 {
		return nil
	}
	raw := pw.buf

	payload, err := compressFrame(pw.opts.compression, pw.enc, raw)
	if err != nil {
		pw.err = err
		return err
	}

	var head [frameHeadSize]byte
	binary.LittleEndian.PutUint32(head[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(head[4:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(head[8:], frameChecksum(payload))

	if _, err := pw.w.Write(head[:]); err != nil {
		pw.err = err
		return err
	}
	if _, err := pw.w.Write(payload); err != nil {
		pw.err = err
		return err
	}
	pw.buf = pw.buf[:0]
	return nil
}

// Close flushes the final frame and all buffered bytes, and returns the
// writer's memory reservation.
func (pw *Writer) Close() error {
	defer pw.release()
	if pw.err != nil {
		return pw.err
	}
	if err := pw.flushFrame(); err != nil {
		return err
	}
	if pw.enc != nil {
		pw.enc.Close()
	}
	if err := pw.w.Flush(); err != nil {
		pw.err = err
		return err
	}
	pw.err = io.ErrClosedPipe
	return nil
}

// Reader decodes a pair file from a stream.
type Reader struct {
	r           *bufio.Reader
	compression Compression
	dec         *zstd.Decoder
	frame       []byte
}

// NewReader validates the header and returns a Reader on top of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var head [headerSize]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return nil, fmt.Errorf("pairfile: read header: %w", err)
	}
	c, err := decodeHeader(head[:])
	if err != nil {
		return nil, err
	}
	pr := &Reader{r: br, compression: c}
	if c == CompressionZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("pairfile: zstd decoder: %w", err)
		}
		pr.dec = dec
	}
	return pr, nil
}

// Next returns the next pair, or io.EOF at a clean end of file.
func (pr *Reader) Next() (core.ScoredPair, error) {
	for len(pr.frame) == 0 {
		if err := pr.readFrame(); err != nil {
			return core.ScoredPair{}, err
		}
	}
	sp, rest, err := readPair(pr.frame)
	if err != nil {
		return core.ScoredPair{}, err
	}
	pr.frame = rest
	return sp, nil
}

func (pr *Reader) readFrame() error {
	var head [frameHeadSize]byte
	if _, err := io.ReadFull(pr.r, head[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		// A truncated frame head is corruption, not a clean end.
		return fmt.Errorf("%w: truncated frame head", ErrCorrupt)
	}
	rawLen := int(binary.LittleEndian.Uint32(head[0:]))
	storedLen := int(binary.LittleEndian.Uint32(head[4:]))
	sum := binary.LittleEndian.Uint32(head[8:])

	if rawLen <= 0 || rawLen > maxFrameSize || storedLen <= 0 || storedLen > rawLen {
		return fmt.Errorf("%w: frame lengths raw=%d stored=%d", ErrCorrupt, rawLen, storedLen)
	}

	payload := make([]byte, storedLen)
	if _, err := io.ReadFull(pr.r, payload); err != nil {
		return fmt.Errorf("%w: truncated frame payload", ErrCorrupt)
	}
	if frameChecksum(payload) != sum {
		return ErrChecksum
	}

	// A stored length equal to the raw length marks an uncompressed frame.
	if storedLen == rawLen || pr.compression == CompressionNone {
		pr.frame = payload
		return nil
	}
	raw, err := decompressFrame(pr.compression, pr.dec, payload, rawLen)
	if err != nil {
		return err
	}
	pr.frame = raw
	return nil
}

// Close releases decoder state.
func (pr *Reader) Close() error {
	if pr.dec != nil {
		pr.dec.Close()
	}
	return nil
}

// WriteAll drains pairs into a new blob. On any error the partial blob is
// left to the store's cleanup; callers should treat the name as absent.
func WriteAll(ctx context.Context, store blobstore.Store, name string, pairs iter.Seq2[core.ScoredPair, error], opts ...WriterOption) (uint64, error) {
	blob, err := store.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	pw, err := NewWriter(blob, opts...)
	if err != nil {
		blob.Close()
		return 0, err
	}

	n := 0
	for sp, err := range pairs {
		if err != nil {
			pw.release()
			blob.Close()
			return 0, err
		}
		if err := pw.Write(sp); err != nil {
			pw.release()
			blob.Close()
			return 0, err
		}
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				pw.release()
				blob.Close()
				return 0, err
			}
		}
	}
	if err := pw.Close(); err != nil {
		blob.Close()
		return 0, err
	}
	return pw.Written(), blob.Close()
}

// Pairs returns a restartable sequence over a stored pair file. Every
// range over the sequence reopens the blob, so the same sequence can feed
// multiple passes, clustering then diagnostics for example.
func Pairs(ctx context.Context, store blobstore.Store, name string) iter.Seq2[core.ScoredPair, error] {
	return func(yield func(core.ScoredPair, error) bool) {
		rc, err := store.Open(ctx, name)
		if err != nil {
			yield(core.ScoredPair{}, err)
			return
		}
		defer rc.Close()

		pr, err := NewReader(rc)
		if err != nil {
			yield(core.ScoredPair{}, err)
			return
		}
		defer pr.Close()

		n := 0
		for {
			sp, err := pr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(core.ScoredPair{}, err)
				return
			}
			if !yield(sp, nil) {
				return
			}
			n++
			if n%4096 == 0 {
				if err := ctx.Err(); err != nil {
					yield(core.ScoredPair{}, err)
					return
				}
			}
		}
	}
}
