package duplex

import (
	"bytes"
	"errors"
	"testing"
)

// fakeStream is an in-memory transport.Stream for testing the adapter
// without a real transport backend.
type fakeStream struct {
	in         *bytes.Buffer
	out        *bytes.Buffer
	writeErr   error
	writeClose bool
	closed     bool
}

func (f *fakeStream) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeStream) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.out.Write(p)
}
func (f *fakeStream) CloseWrite() error { f.writeClose = true; return nil }
func (f *fakeStream) Close() error      { f.closed = true; return nil }

func TestStreamReadWrite(t *testing.T) {
	fs := &fakeStream{in: bytes.NewBufferString("hello"), out: &bytes.Buffer{}}
	s := New(fs)

	buf := make([]byte, 5)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected hello, got %q", buf[:n])
	}

	if _, err := s.Write([]byte("world")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fs.out.String() != "world" {
		t.Fatalf("expected world written through, got %q", fs.out.String())
	}
}

func TestStreamFlushIsNoop(t *testing.T) {
	s := New(&fakeStream{in: &bytes.Buffer{}, out: &bytes.Buffer{}})
	if err := s.Flush(); err != nil {
		t.Fatalf("expected nil error from Flush, got %v", err)
	}
}

func TestStreamCloseWriteOnlyShutsSendHalf(t *testing.T) {
	fs := &fakeStream{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	s := New(fs)
	if err := s.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	if !fs.writeClose {
		t.Fatal("expected underlying CloseWrite to be called")
	}
	if fs.closed {
		t.Fatal("CloseWrite must not fully close the stream")
	}
}

func TestStreamWritePropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	fs := &fakeStream{in: &bytes.Buffer{}, out: &bytes.Buffer{}, writeErr: wantErr}
	s := New(fs)
	if _, err := s.Write([]byte("x")); err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}
