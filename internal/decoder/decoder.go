// Package decoder turns the raw byte fragments of a chunked `data: ` stream into
// framed messages.
//
// Fragments may split a line anywhere, including inside a multi-byte rune, or
// carry several lines at once. Lines are cut on raw bytes and decoded only when
// complete, so a rune straddling two fragments is reassembled before decoding.
// Malformed lines are dropped; the stream is never aborted by bad input.
package decoder

import (
	"bytes"
	"encoding/json"
	"io"
	"iter"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// Prefix marks a line carrying a JSON frame.
const Prefix = "data: "

const readBufferSize = 4096

// Drop reasons passed to the drop hook.
const (
	DropPrefix = "prefix"
	DropJSON   = "json"
	DropType   = "type"
)

// Decoder is a stateful incremental frame parser. It is not safe for concurrent use.
type Decoder struct {
	pending []byte
	utf8    *encoding.Decoder
	logger  zerolog.Logger
	onDrop  func(reason string)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for dropped lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithDropHook registers a callback invoked for every discarded line.
func WithDropHook(fn func(reason string)) Option {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// New creates a Decoder with an empty buffer.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		utf8:   unicode.UTF8.NewDecoder(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "decoder").Logger()
	return d
}

// Feed appends a fragment and returns the frames of every line it completed,
// in arrival order. The trailing partial line stays buffered.
func (d *Decoder) Feed(fragment []byte) []chat.Frame {
	d.pending = append(d.pending, fragment...)

	var frames []chat.Frame
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		if frame, ok := d.parseLine(d.pending[:idx]); ok {
			frames = append(frames, frame)
		}
		d.pending = d.pending[idx+1:]
	}

	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		d.pending = append([]byte(nil), d.pending...)
	}
	return frames
}

// Flush parses whatever is buffered as a final line and resets the decoder.
func (d *Decoder) Flush() []chat.Frame {
	rest := d.pending
	d.pending = nil
	if len(rest) == 0 {
		return nil
	}
	if frame, ok := d.parseLine(rest); ok {
		return []chat.Frame{frame}
	}
	return nil
}

// Buffered returns the number of bytes held back waiting for a newline.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// Frames lazily reads r and yields frames as soon as their line is complete.
// A read error other than io.EOF is yielded once with a zero Frame and ends
// the sequence; at EOF any buffered line is flushed.
func (d *Decoder) Frames(r io.Reader) iter.Seq2[chat.Frame, error] {
	return func(yield func(chat.Frame, error) bool) {
		buf := make([]byte, readBufferSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, frame := range d.Feed(buf[:n]) {
					if !yield(frame, nil) {
						return
					}
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				for _, frame := range d.Flush() {
					if !yield(frame, nil) {
						return
					}
				}
				return
			}
			yield(chat.Frame{}, err)
			return
		}
	}
}

func (d *Decoder) parseLine(raw []byte) (chat.Frame, bool) {
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	if len(raw) == 0 {
		return chat.Frame{}, false
	}

	line, err := d.utf8.Bytes(raw)
	if err != nil {
		d.drop(DropPrefix, raw, err)
		return chat.Frame{}, false
	}
	if !bytes.HasPrefix(line, []byte(Prefix)) {
		d.drop(DropPrefix, line, nil)
		return chat.Frame{}, false
	}
	payload := line[len(Prefix):]

	var env chat.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		d.drop(DropJSON, line, err)
		return chat.Frame{}, false
	}

	switch chat.Kind(env.Type) {
	case chat.KindChunk:
		return chat.ChunkFrame(env.Content), true
	case chat.KindComplete:
		return chat.CompleteFrame(env.SessionID), true
	case chat.KindError:
		return chat.ErrorFrame(env.Content), true
	case chat.KindEvent:
		var ev chat.EventPayload
		if len(env.Event) > 0 {
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				d.drop(DropJSON, line, err)
				return chat.Frame{}, false
			}
		}
		return chat.EventFrame(ev), true
	case chat.KindPing:
		return chat.Frame{Kind: chat.KindPing}, true
	case chat.KindPong:
		return chat.Frame{Kind: chat.KindPong, Timestamp: env.Timestamp}, true
	default:
		d.drop(DropType, line, nil)
		return chat.Frame{}, false
	}
}

func (d *Decoder) drop(reason string, line []byte, err error) {
	if d.onDrop != nil {
		d.onDrop(reason)
	}
	ev := d.logger.Debug()
	if reason == DropJSON {
		ev = d.logger.Warn()
	}
	ev.Err(err).Str("reason", reason).Int("bytes", len(line)).Msg("dropping line")
}
