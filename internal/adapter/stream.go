package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/hpn/hpn-p-router/internal/observability"
)

// maxLineSize bounds a single event line.
const maxLineSize = 1 << 20

var dataPrefix = []byte("data: ")

// FrameKind classifies one line of the inference event stream.
type FrameKind int

const (
	// FrameIgnored is a line without the data prefix.
	FrameIgnored FrameKind = iota
	// FrameText carries answer text.
	FrameText
	// FrameEmpty is a data line with nothing after the prefix.
	FrameEmpty
	// FrameDone ends the stream.
	FrameDone
	// FrameBackendError reports an upstream failure.
	FrameBackendError
	// FrameStructural carries search results, follow-ups or UI markers.
	FrameStructural
)

func (k FrameKind) String() string {
	switch k {
	case FrameIgnored:
		return "ignored"
	case FrameText:
		return "text"
	case FrameEmpty:
		return "empty"
	case FrameDone:
		return "done"
	case FrameBackendError:
		return "backend_error"
	case FrameStructural:
		return "structural"
	default:
		return "unknown"
	}
}

var structuralTags = [][]byte{
	[]byte("<PHIND_WEBRESULTS>"),
	[]byte("<PHIND_FOLLOWUP>"),
	[]byte("<PHIND_METADATA>"),
	[]byte("<PHIND_INDICATOR>"),
	[]byte("<PHIND_SPAN_BEGIN>"),
	[]byte("<PHIND_SPAN_END>"),
}

var (
	doneTag         = []byte("<PHIND_DONE/>")
	backendErrorTag = []byte("<PHIND_BACKEND_ERROR>")
)

// Frame is a classified event line. Data is the payload after the prefix.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// ClassifyLine classifies a single line with its terminator removed.
func ClassifyLine(line []byte) Frame {
	if !bytes.HasPrefix(line, dataPrefix) {
		return Frame{Kind: FrameIgnored}
	}
	chunk := line[len(dataPrefix):]

	switch {
	case bytes.HasPrefix(chunk, doneTag):
		return Frame{Kind: FrameDone, Data: chunk}
	case bytes.HasPrefix(chunk, backendErrorTag):
		return Frame{Kind: FrameBackendError, Data: chunk}
	case len(chunk) == 0:
		return Frame{Kind: FrameEmpty}
	}

	for _, tag := range structuralTags {
		if bytes.HasPrefix(chunk, tag) {
			return Frame{Kind: FrameStructural, Data: chunk}
		}
	}
	return Frame{Kind: FrameText, Data: chunk}
}

// Demuxer turns the inference event stream into text fragments. It is not
// safe for concurrent use and cannot be restarted.
type Demuxer struct {
	scanner *bufio.Scanner

	// newline is set by one empty frame; a second empty frame emits "\n".
	newline bool

	// err is the terminal error returned by every call after the end.
	err error
}

// NewDemuxer reads events from r.
func NewDemuxer(r io.Reader) *Demuxer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Demuxer{scanner: scanner}
}

// Next returns the next text fragment. It returns io.EOF after the done
// frame or the end of input, and *UpstreamBackendError after a backend error
// frame. Once an error is returned every later call returns it again.
func (d *Demuxer) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}

	for d.scanner.Scan() {
		frame := ClassifyLine(d.scanner.Bytes())

		switch frame.Kind {
		case FrameDone:
			d.err = io.EOF
			return "", d.err

		case FrameBackendError:
			d.err = &UpstreamBackendError{Raw: string(frame.Data)}
			return "", d.err

		case FrameText:
			return string(frame.Data), nil

		case FrameEmpty:
			if d.newline {
				d.newline = false
				return "\n", nil
			}
			d.newline = true
		}
	}

	if err := d.scanner.Err(); err != nil {
		d.err = err
	} else {
		d.err = io.EOF
	}
	return "", d.err
}

// ChatStream is an open inference stream. Recv yields fragments until it
// returns an error; io.EOF marks a clean end. Close must always be called.
type ChatStream struct {
	demux  *Demuxer
	body   io.ReadCloser
	cancel context.CancelFunc

	closeOnce sync.Once
	lastErr   error
}

func newChatStream(body io.ReadCloser, cancel context.CancelFunc) *ChatStream {
	observability.ActiveStreams.Inc()
	return &ChatStream{
		demux:  NewDemuxer(body),
		body:   body,
		cancel: cancel,
	}
}

// Recv returns the next text fragment.
func (s *ChatStream) Recv() (string, error) {
	fragment, err := s.demux.Next()
	if err != nil {
		s.lastErr = err
		return "", err
	}
	observability.FragmentsTotal.Inc()
	return fragment, nil
}

// Close cancels the request and releases the response body. It is safe to
// call more than once.
func (s *ChatStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
		observability.ActiveStreams.Dec()
		observability.InferenceTotal.WithLabelValues(outcome(s.lastErr)).Inc()
	})
	return err
}

// Collect drains the stream into a single string. Fragments received before
// an error are returned along with it.
func (s *ChatStream) Collect() (string, error) {
	var sb strings.Builder
	for {
		fragment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(fragment)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return observability.OutcomeCompleted
	case IsUpstreamBackendError(err):
		return observability.OutcomeBackendError
	case err == nil, errors.Is(err, context.Canceled):
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeTransportError
	}
}
