package adapter

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func drain(t *testing.T, d *Demuxer) ([]string, error) {
	t.Helper()
	var out []string
	for i := 0; i < 100; i++ {
		fragment, err := d.Next()
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
	t.Fatal("demuxer did not terminate")
	return nil, nil
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want FrameKind
	}{
		{"event: message", FrameIgnored},
		{"data:no-space", FrameIgnored},
		{"", FrameIgnored},
		{"data: ", FrameEmpty},
		{"data: hello", FrameText},
		{"data:  indented", FrameText},
		{"data: <PHIND_DONE/>", FrameDone},
		{"data: <PHIND_BACKEND_ERROR>boom", FrameBackendError},
		{"data: <PHIND_WEBRESULTS>[]", FrameStructural},
		{"data: <PHIND_FOLLOWUP>x", FrameStructural},
		{"data: <PHIND_METADATA>{}", FrameStructural},
		{"data: <PHIND_INDICATOR>thinking", FrameStructural},
		{"data: <PHIND_SPAN_BEGIN>", FrameStructural},
		{"data: <PHIND_SPAN_END>", FrameStructural},
		{"data: <PHIND_UNKNOWN>", FrameText},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := ClassifyLine([]byte(tt.line)).Kind; got != tt.want {
				t.Errorf("ClassifyLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDemuxer_EmptyFramesEmitNewline(t *testing.T) {
	t.Log("=== TEST: Two empty frames emit a newline ===")

	input := "data: foo\ndata: \ndata: \ndata: <PHIND_DONE/>\ndata: after\n"
	got, err := drain(t, NewDemuxer(strings.NewReader(input)))

	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	want := []string{"foo", "\n"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("fragments = %q, want %q", got, want)
	}
}

func TestDemuxer_SingleEmptyFrameEmitsNothing(t *testing.T) {
	input := "data: a\ndata: \ndata: b\ndata: <PHIND_DONE/>\n"
	got, err := drain(t, NewDemuxer(strings.NewReader(input)))

	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if strings.Join(got, "") != "ab" {
		t.Errorf("fragments = %q, want [a b]", got)
	}
}

func TestDemuxer_TextKeepsPendingNewline(t *testing.T) {
	input := "data: a\ndata: \ndata: b\ndata: \ndata: c\n"
	got, _ := drain(t, NewDemuxer(strings.NewReader(input)))

	want := []string{"a", "b", "\n", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("fragments = %q, want %q", got, want)
	}
}

func TestDemuxer_StructuralFramesDiscarded(t *testing.T) {
	input := strings.Join([]string{
		"data: <PHIND_WEBRESULTS>[{\"url\":\"x\"}]",
		"data: <PHIND_METADATA>{}",
		"data: Hello",
		"data: <PHIND_SPAN_BEGIN>",
		"data: , world",
		"data: <PHIND_SPAN_END>",
		"data: <PHIND_FOLLOWUP>more?",
		"data: <PHIND_INDICATOR>",
		": keep-alive",
		"data: <PHIND_DONE/>",
	}, "\n")

	got, err := drain(t, NewDemuxer(strings.NewReader(input)))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if strings.Join(got, "") != "Hello, world" {
		t.Errorf("text = %q, want %q", strings.Join(got, ""), "Hello, world")
	}
}

func TestDemuxer_BackendError(t *testing.T) {
	t.Log("=== TEST: Backend error after two fragments ===")

	input := "data: one\ndata: two\ndata: <PHIND_BACKEND_ERROR>rate limited\ndata: three\n"
	d := NewDemuxer(strings.NewReader(input))

	got, err := drain(t, d)
	if strings.Join(got, "|") != "one|two" {
		t.Errorf("fragments = %q, want [one two]", got)
	}

	var backendErr *UpstreamBackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("terminal error = %v, want *UpstreamBackendError", err)
	}
	if backendErr.Raw != "<PHIND_BACKEND_ERROR>rate limited" {
		t.Errorf("Raw = %q, want the full frame", backendErr.Raw)
	}

	// Terminal state is sticky.
	if _, again := d.Next(); again != err {
		t.Errorf("Next() after error = %v, want %v", again, err)
	}
}

func TestDemuxer_EndWithoutDoneIsEOF(t *testing.T) {
	d := NewDemuxer(strings.NewReader("data: partial\n"))

	got, err := drain(t, d)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("terminal error = %v, want io.EOF", err)
	}
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("fragments = %q, want [partial]", got)
	}
	if _, again := d.Next(); !errors.Is(again, io.EOF) {
		t.Errorf("Next() after EOF = %v, want io.EOF", again)
	}
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDemuxer_ReadErrorSurfaces(t *testing.T) {
	readErr := errors.New("connection reset")
	d := NewDemuxer(&failingReader{data: "data: x\n", err: readErr})

	got, err := drain(t, d)
	if !errors.Is(err, readErr) {
		t.Fatalf("terminal error = %v, want %v", err, readErr)
	}
	if len(got) != 1 {
		t.Errorf("fragments = %q, want one", got)
	}
}

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func TestChatStream_CloseCancelsAndReleases(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: hi\ndata: <PHIND_DONE/>\n")}
	cancelled := 0
	stream := newChatStream(body, func() { cancelled++ })

	text, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if text != "hi" {
		t.Errorf("Collect() = %q, want %q", text, "hi")
	}

	stream.Close()
	stream.Close()

	if body.closed != 1 {
		t.Errorf("body closed %d times, want 1", body.closed)
	}
	if cancelled != 1 {
		t.Errorf("cancel called %d times, want 1", cancelled)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{io.EOF, "completed"},
		{&UpstreamBackendError{Raw: "x"}, "backend_error"},
		{nil, "cancelled"},
		{errors.New("reset"), "transport_error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
