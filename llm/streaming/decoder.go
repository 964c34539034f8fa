package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/BaSui01/structflow/types"
)

const (
	// DataPrefix 是唯一携带有效载荷的 SSE 字段前缀。
	DataPrefix = "data:"

	// DefaultMaxLineSize bounds the memory held for a single line.
	DefaultMaxLineSize = 1 << 20

	defaultReadSize = 4096
)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxLineSize caps the length of one line. Non-positive values keep the default.
func WithMaxLineSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// WithReadSize sets how many bytes are requested from the source per read.
func WithReadSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.chunk = make([]byte, n)
		}
	}
}

// Decoder turns a server-sent event byte stream into a lazy sequence of
// trimmed `data:` payloads. It is single-pass and not safe for concurrent use.
//
// Exhaustion is signalled only by io.EOF. A read returning (0, nil) means no
// data is available yet and is retried.
type Decoder struct {
	src     io.Reader
	chunk   []byte
	pending []byte // read but not yet split into lines
	line    []byte
	maxLine int

	payload  string
	err      error
	readErr  error
	eof      bool
	done     bool
	reported bool
}

// NewDecoder creates a decoder that borrows src for exactly one pass.
func NewDecoder(src io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		src:     src,
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chunk == nil {
		d.chunk = make([]byte, defaultReadSize)
	}
	return d
}

// Next advances to the next payload. It returns false when the stream is
// exhausted, ctx is done, or reading failed; Err distinguishes the cases.
func (d *Decoder) Next(ctx context.Context) bool {
	for !d.done {
		line, ok := d.readLine(ctx)
		if !ok {
			d.done = true
			break
		}
		if payload, ok := ParseDataLine(line); ok {
			d.payload = payload
			return true
		}
	}
	d.payload = ""
	return false
}

// Payload returns the payload produced by the last successful Next.
func (d *Decoder) Payload() string { return d.payload }

// Err returns the first non-EOF error encountered. It is nil after a clean
// end of stream.
func (d *Decoder) Err() error { return d.err }

// Events exposes the decoder as a range-over-func sequence. A terminal error
// is yielded once as the last element.
func (d *Decoder) Events(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for d.Next(ctx) {
			if !yield(d.payload, nil) {
				return
			}
		}
		if d.err != nil && !d.reported {
			d.reported = true
			yield("", d.err)
		}
	}
}

// readLine returns the next complete line without its terminator. A final
// unterminated line is returned as a line at EOF. On a read error, complete
// lines already buffered are delivered first and a partial line is dropped.
func (d *Decoder) readLine(ctx context.Context) (string, bool) {
	for {
		if i := bytes.IndexByte(d.pending, '\n'); i >= 0 {
			if !d.appendLine(d.pending[:i]) {
				return "", false
			}
			d.pending = d.pending[i+1:]
			return d.takeLine(), true
		}
		if !d.appendLine(d.pending) {
			return "", false
		}
		d.pending = nil

		if d.readErr != nil {
			d.err = types.NewError(types.ErrStreamRead, "failed to read event stream").
				WithCause(d.readErr).WithRetryable(true)
			return "", false
		}
		if d.eof {
			if len(d.line) == 0 {
				return "", false
			}
			return d.takeLine(), true
		}
		if err := ctx.Err(); err != nil {
			d.err = types.NewError(types.ErrStreamRead, "stream cancelled").WithCause(err)
			return "", false
		}

		n, err := d.src.Read(d.chunk)
		if n > 0 {
			d.pending = d.chunk[:n]
		}
		switch {
		case err == nil:
			// (0, nil) 是瞬时状态，继续读取
		case errors.Is(err, io.EOF):
			d.eof = true
		default:
			d.readErr = err
		}
	}
}

func (d *Decoder) appendLine(b []byte) bool {
	if len(d.line)+len(b) > d.maxLine {
		d.err = types.NewError(types.ErrStreamLineTooLong, "event stream line exceeds limit")
		return false
	}
	d.line = append(d.line, b...)
	return true
}

func (d *Decoder) takeLine() string {
	s := string(d.line)
	d.line = d.line[:0]
	return s
}

// ParseDataLine extracts the payload of a `data:` line.
func ParseDataLine(line string) (string, bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(DataPrefix):]), true
}
