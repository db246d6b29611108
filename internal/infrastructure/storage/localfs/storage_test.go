package localfs

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	want := []byte("%PDF-1.7 exam")
	if err := s.Save(ctx, "doc-1/exam.pdf", bytes.NewReader(want)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r, err := s.Open(ctx, "doc-1/exam.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	first, err := s.Put(ctx, "doc-1/page-1.png", []byte("original"), "image/png")
	if err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	second, err := s.Put(ctx, "doc-1/page-1.png", []byte("replacement"), "image/png")
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if first != second {
		t.Fatalf("locators differ: %q vs %q", first, second)
	}

	got, err := s.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("replay overwrote the object: %q", got)
	}
}

func TestGetMissingObject(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Get(context.Background(), "doc-1/page-404.png"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}
