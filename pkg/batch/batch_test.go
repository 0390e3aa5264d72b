package batch

import (
	"errors"
	"testing"
)

func TestTextBatch_AddSizeFlush(t *testing.T) {
	b := NewTextBatch(10)
	b.Add("one")
	b.AddBulk([]string{"two", "three"})

	if got := b.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	items := b.Flush()
	if len(items) != 3 {
		t.Fatalf("Flush() returned %d items, want 3", len(items))
	}
	if b.Size() != 0 {
		t.Fatalf("Size() after Flush() = %d, want 0", b.Size())
	}
}

func TestTextBatch_IsFull(t *testing.T) {
	b := NewTextBatch(2)
	if b.IsFull() {
		t.Fatal("IsFull() on empty batch, want false")
	}
	b.Add("one")
	b.Add("two")
	if !b.IsFull() {
		t.Fatal("IsFull() at capacity, want true")
	}
}

func TestTextBatch_FlushEmptyReturnsNil(t *testing.T) {
	b := NewTextBatch(10)
	if items := b.Flush(); items != nil {
		t.Errorf("Flush() on empty batch = %v, want nil", items)
	}
}

func TestProcessor_AutoFlushOnFull(t *testing.T) {
	var flushed [][]string
	p := NewProcessor(2, true, func(texts []string) error {
		flushed = append(flushed, texts)
		return nil
	})

	if err := p.AddText("a"); err != nil {
		t.Fatalf("AddText() error: %v", err)
	}
	if len(flushed) != 0 {
		t.Fatalf("flushed before batch is full: %v", flushed)
	}
	if err := p.AddText("b"); err != nil {
		t.Fatalf("AddText() error: %v", err)
	}
	if len(flushed) != 1 || len(flushed[0]) != 2 {
		t.Fatalf("AddText() at capacity did not auto-flush, flushed=%v", flushed)
	}
}

func TestProcessor_ManualFlush(t *testing.T) {
	var flushed []string
	p := NewProcessor(100, false, func(texts []string) error {
		flushed = texts
		return nil
	})

	_ = p.AddText("a")
	_ = p.AddText("b")
	if len(flushed) != 0 {
		t.Fatalf("flushed without autoFlush: %v", flushed)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if len(flushed) != 2 {
		t.Fatalf("Flush() delivered %d items, want 2", len(flushed))
	}
}

func TestProcessor_FlushPropagatesCallbackError(t *testing.T) {
	wantErr := errors.New("ingest failed")
	p := NewProcessor(10, false, func(texts []string) error {
		return wantErr
	})
	_ = p.AddText("a")
	if err := p.Flush(); err == nil {
		t.Fatal("Flush() with a failing callback: want error, got nil")
	}
}
