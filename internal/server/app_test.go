package server

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/config"
	"github.com/dmitrijs2005/recordkeeper/internal/server/messagebus"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/repomanager"
)

func memoryBackends() *Backends {
	return &Backends{
		Repos:   repomanager.NewMemoryRepositoryManager(),
		Content: blobstore.NewMemoryStore(),
		Bus:     messagebus.NewMemoryBus(),
	}
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.MetricsAddr = "127.0.0.1:0"
	return c
}

func TestNewAppWithBackends_InvalidWorkerThreadsLogged(t *testing.T) {
	var buf bytes.Buffer
	c := testConfig()
	c.WorkerThreads = 0

	app := NewAppWithBackends(c, logging.NewJSONLogger(&buf, "info"), memoryBackends())
	require.NotNil(t, app)

	assert.Contains(t, buf.String(), "worker_threads must be positive")
	assert.Contains(t, buf.String(), `"workers":64`)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	app := NewAppWithBackends(testConfig(), logging.NewJSONLogger(&buf, "info"), memoryBackends())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("app did not stop")
	}
	assert.Contains(t, buf.String(), "App stopped")
}

func TestApp_RunFailsOnBadMetricsAddress(t *testing.T) {
	c := testConfig()
	c.MetricsAddr = "bad:address:123"
	app := NewAppWithBackends(c, logging.NewJSONLogger(&bytes.Buffer{}, "error"), memoryBackends())

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("app did not stop")
	}
}
