// Package batch buffers text for bulk ingestion: a Processor collects
// documents and hands them to a caller-supplied FlushFunc in one call
// per batch rather than one call per document. Adapted from the
// teacher's EntityBatch/RelationshipBatch/BatchProcessor shape
// (buffer-until-full, flush via callback), collapsed from three
// parallel batch types down to the one this domain needs: text.
package batch

import (
	"fmt"
	"sync"
)

// TextBatch buffers text up to maxSize entries before the caller must
// flush it.
type TextBatch struct {
	items   []string
	mu      sync.Mutex
	maxSize int
}

// NewTextBatch creates a batch that holds up to maxSize items before
// IsFull reports true. maxSize <= 0 defaults to 1000.
func NewTextBatch(maxSize int) *TextBatch {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &TextBatch{
		items:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends one item to the batch.
func (tb *TextBatch) Add(text string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.items = append(tb.items, text)
}

// AddBulk appends multiple items to the batch.
func (tb *TextBatch) AddBulk(texts []string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.items = append(tb.items, texts...)
}

// Size returns the current batch size.
func (tb *TextBatch) Size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.items)
}

// IsFull reports whether the batch has reached its configured capacity.
func (tb *TextBatch) IsFull() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.items) >= tb.maxSize
}

// Flush returns a copy of the buffered items and clears the batch.
func (tb *TextBatch) Flush() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if len(tb.items) == 0 {
		return nil
	}

	result := make([]string, len(tb.items))
	copy(result, tb.items)
	tb.items = tb.items[:0]

	return result
}

// FlushFunc is called with the buffered items whenever a Processor
// flushes, e.g. to run Store.Ingest over each one.
type FlushFunc func(texts []string) error

// Processor wraps a TextBatch with an optional auto-flush-on-full
// policy and a callback that does the actual ingestion work.
type Processor struct {
	batch     *TextBatch
	flushFunc FlushFunc
	autoFlush bool
	mu        sync.Mutex
}

// NewProcessor creates a Processor. When autoFlush is true, AddText
// calls Flush as soon as the underlying batch reaches maxSize.
func NewProcessor(maxSize int, autoFlush bool, flushFunc FlushFunc) *Processor {
	return &Processor{
		batch:     NewTextBatch(maxSize),
		flushFunc: flushFunc,
		autoFlush: autoFlush,
	}
}

// AddText adds text to the batch, flushing immediately if autoFlush is
// enabled and the batch is now full.
func (p *Processor) AddText(text string) error {
	p.batch.Add(text)
	if p.autoFlush && p.batch.IsFull() {
		return p.Flush()
	}
	return nil
}

// Flush drains the batch and runs the flush callback over whatever was
// buffered. It is a no-op if the batch is empty.
func (p *Processor) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	texts := p.batch.Flush()
	if len(texts) == 0 {
		return nil
	}
	if p.flushFunc != nil {
		if err := p.flushFunc(texts); err != nil {
			return fmt.Errorf("batch flush: %w", err)
		}
	}
	return nil
}

// Size returns the number of items currently buffered.
func (p *Processor) Size() int {
	return p.batch.Size()
}
