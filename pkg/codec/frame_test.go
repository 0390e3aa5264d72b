package codec

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: 7, Type: CmdQuery, Store: "corpus", Text: "hello", K: 3}
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}

	var got Request
	if err := ReadFrame(&buf, 0, &got); err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if got.ID != req.ID || got.Type != req.Type || got.Store != req.Store || got.Text != req.Text || got.K != req.K {
		t.Errorf("ReadFrame() = %+v, want %+v", got, req)
	}
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Request{Type: CmdPing}); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	var got Request
	if err := ReadFrame(&buf, 2, &got); err == nil {
		t.Fatal("ReadFrame() with a tiny max size: want error, got nil")
	}
}

func TestReadFrame_EOFOnEmptyReader(t *testing.T) {
	var got Request
	err := ReadFrame(bytes.NewReader(nil), 0, &got)
	if err != io.EOF {
		t.Fatalf("ReadFrame() on empty reader = %v, want io.EOF", err)
	}
}

func TestWriteReadFrame_MultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	reqs := []Request{{ID: 1, Type: CmdPing}, {ID: 2, Type: CmdInfo}}
	for _, r := range reqs {
		if err := WriteFrame(&buf, r); err != nil {
			t.Fatalf("WriteFrame() error: %v", err)
		}
	}
	for _, want := range reqs {
		var got Request
		if err := ReadFrame(&buf, 0, &got); err != nil {
			t.Fatalf("ReadFrame() error: %v", err)
		}
		if got.ID != want.ID || got.Type != want.Type {
			t.Errorf("ReadFrame() = %+v, want %+v", got, want)
		}
	}
}
