package execpipe

import "testing"

func TestPipeWriteRead(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.CloseRead()

	if err := p.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := p.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	got, err := p.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read() = %q, want %q", got, "hello")
	}
}

func TestPipeCloseIsIdempotent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.CloseRead(); err != nil {
		t.Fatalf("first CloseRead: %v", err)
	}
	if err := p.CloseRead(); err != nil {
		t.Fatalf("second CloseRead should be a no-op: %v", err)
	}
	if err := p.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
}
