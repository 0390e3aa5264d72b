package client

import (
	"fmt"
	"sync/atomic"

	"github.com/vidqr/vidqr/pkg/codec"
	"github.com/vidqr/vidqr/pkg/vectorindex"
)

// Client is a synchronous client for one server address, backed by a
// pooled connection per call.
type Client struct {
	pool      *ConnPool
	requestID atomic.Uint64
}

func NewClient(addr string) (*Client, error) {
	return NewClientWithConfig(addr, DefaultPoolConfig())
}

func NewClientWithConfig(addr string, cfg PoolConfig) (*Client, error) {
	pool, err := NewConnPool(addr, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool}, nil
}

// Close releases every pooled connection.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// PoolStats reports the pool's active and idle-available connection
// counts.
func (c *Client) PoolStats() (active, available int) {
	return c.pool.Stats()
}

func (c *Client) call(req codec.Request) (codec.Response, error) {
	req.ID = c.requestID.Add(1)

	pc, err := c.pool.acquire()
	if err != nil {
		return codec.Response{}, err
	}

	if err := codec.WriteFrame(pc.conn, req); err != nil {
		c.pool.discard(pc)
		return codec.Response{}, err
	}
	var resp codec.Response
	if err := codec.ReadFrame(pc.conn, 0, &resp); err != nil {
		c.pool.discard(pc)
		return codec.Response{}, err
	}
	c.pool.release(pc)

	if !resp.Ok {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}

// Ping checks connectivity to the server.
func (c *Client) Ping() error {
	_, err := c.call(codec.Request{Type: codec.CmdPing})
	return err
}

// Info returns the server's human-readable status line.
func (c *Client) Info() (string, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdInfo})
	if err != nil {
		return "", err
	}
	return resp.Info, nil
}

// CreateStore opens (creating if necessary) the named store.
func (c *Client) CreateStore(name string) error {
	_, err := c.call(codec.Request{Type: codec.CmdCreateStore, Store: name})
	return err
}

// Ingest chunks, embeds, and indexes text in the named store, buffering
// it for the next Seal. It returns the IDs assigned to each chunk.
func (c *Client) Ingest(store, text string) ([]uint64, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdIngest, Store: store, Text: text})
	if err != nil {
		return nil, err
	}
	return resp.ChunkID, nil
}

// Seal builds the named store's buffered chunks into its corpus video.
func (c *Client) Seal(store string) (string, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdSeal, Store: store})
	if err != nil {
		return "", err
	}
	return resp.Info, nil
}

// Query embeds text and returns the k nearest indexed chunks in store.
func (c *Client) Query(store, text string, k int) ([]vectorindex.SearchResult, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdQuery, Store: store, Text: text, K: k})
	if err != nil {
		return nil, err
	}
	results := make([]vectorindex.SearchResult, len(resp.Hits))
	for i, h := range resp.Hits {
		results[i] = vectorindex.SearchResult{ID: h.ID, Similarity: h.Similarity, Distance: h.Distance}
	}
	return results, nil
}

// Retrieve decodes every sealed frame in store back into text.
func (c *Client) Retrieve(store string) ([]string, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdRetrieve, Store: store})
	if err != nil {
		return nil, err
	}
	return resp.Texts, nil
}

// ListStores returns the names of every store currently open on the
// server.
func (c *Client) ListStores() ([]string, error) {
	resp, err := c.call(codec.Request{Type: codec.CmdListStores})
	if err != nil {
		return nil, err
	}
	return resp.Stores, nil
}

// DeleteStore closes and forgets the named store on the server.
func (c *Client) DeleteStore(name string) error {
	_, err := c.call(codec.Request{Type: codec.CmdDeleteStore, Store: name})
	return err
}
