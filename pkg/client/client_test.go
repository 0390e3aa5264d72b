package client

import (
	"testing"

	"github.com/vidqr/vidqr/pkg/chunk"
	"github.com/vidqr/vidqr/pkg/kernel"
	"github.com/vidqr/vidqr/pkg/pipeline"
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/server"
	"github.com/vidqr/vidqr/pkg/store"
)

const testDim = 4

func testHashEmbed(text string) ([]float32, error) {
	v := make([]float32, testDim)
	for i, b := range []byte(text) {
		v[i%testDim] += float32(b%7) + 1
	}
	return v, nil
}

func testCfgFor(dir string) store.Config {
	cfg := store.DefaultConfig(testDim)
	cfg.Kernel = kernel.NewCosine(testDim)
	cfg.ChunkConfig = chunk.Config{ChunkSize: 30, OverlapSize: 4, PreserveSentences: true}
	cfg.BuildParams = pipeline.BuildParams{Width: 41 * 2, Height: 41 * 2, FPS: 1, Version: 6, ECC: qr.ECCHigh}
	return cfg
}

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	base := t.TempDir()
	mgr := store.NewManager(base, testCfgFor, testHashEmbed)
	srv := server.New(mgr, server.DefaultConfig())
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return srv.Addr(), func() {
		srv.Stop()
		_ = mgr.CloseAll()
	}
}

func TestClient_PingAndInfo(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := NewClient(addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info == "" {
		t.Error("Info() returned an empty string")
	}
}

func TestClient_IngestQuerySealRetrieve(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := NewClient(addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer c.Close()

	if err := c.CreateStore("notes"); err != nil {
		t.Fatalf("CreateStore() error: %v", err)
	}
	ids, err := c.Ingest("notes", "The client talks to the server over plain TCP frames.")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("Ingest() returned no chunk IDs")
	}

	results, err := c.Query("notes", "TCP frames", 5)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Query() returned no results")
	}

	if _, err := c.Seal("notes"); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	texts, err := c.Retrieve("notes")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(texts) == 0 {
		t.Fatal("Retrieve() returned no texts")
	}

	names, err := c.ListStores()
	if err != nil {
		t.Fatalf("ListStores() error: %v", err)
	}
	if len(names) != 1 || names[0] != "notes" {
		t.Fatalf("ListStores() = %v, want [\"notes\"]", names)
	}

	if err := c.DeleteStore("notes"); err != nil {
		t.Fatalf("DeleteStore() error: %v", err)
	}
}

func TestClient_PoolStatsReflectActiveConnections(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := NewClient(addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	active, _ := c.PoolStats()
	if active == 0 {
		t.Error("PoolStats() active = 0, want > 0 after at least one call")
	}
}
