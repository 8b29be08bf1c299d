package reports

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/exchange/collector"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/internal/worker/fake"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

var (
	sender1   = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h1"}
	receiver1 = notes.PeerInfo{Role: notes.RoleReceiver, Name: "receiver", Host: "h2"}
)

type harness struct {
	broker     *transport.MemoryBroker
	maestro    *client.Maestro
	downloader *LogTransferDownloader
	dir        string
}

func newHarness(t *testing.T, maxTransfers int) *harness {
	b := transport.NewMemoryBroker()
	m, err := client.Dial(context.Background(), "mem://test", transport.WithMemoryBroker(b))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	dir := t.TempDir()
	o, err := NewOrganizer(dir)
	require.NoError(t, err)
	o.Next()
	d, err := NewLogTransferDownloader(m, o, maxTransfers)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return &harness{broker: b, maestro: m, downloader: d, dir: dir}
}

func (h *harness) worker(t *testing.T, info notes.PeerInfo, logs map[notes.LogLocation]map[string][]byte) *fake.Worker {
	w := fake.NewWorker(info, fake.Behaviour{Outcome: fake.Silent, Logs: logs, LogChunkSize: 4})
	require.NoError(t, w.Connect(context.Background(), "mem://test", transport.WithMemoryBroker(h.broker)))
	t.Cleanup(w.Disconnect)
	return w
}

func TestLogTransferDownloader_DownloadsChunkedFiles(t *testing.T) {
	h := newHarness(t, 0)
	senderLog := []byte("sender finished the test run")
	receiverLog := bytes.Repeat([]byte("r"), 13)
	h.worker(t, sender1, map[notes.LogLocation]map[string][]byte{
		notes.LogLastSuccessful: {"test.properties": senderLog, "rate.csv": []byte("1,2,3")},
		notes.LogLastFailed:     {"failed.log": []byte("nope")},
	})
	h.worker(t, receiver1, map[notes.LogLocation]map[string][]byte{
		notes.LogLastSuccessful: {"receiver.log": receiverLog},
	})

	require.NoError(t, h.downloader.DownloadLastSuccessful(sender1))
	require.NoError(t, h.downloader.DownloadLastSuccessful(receiver1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.downloader.WaitForComplete(ctx))

	got, err := os.ReadFile(filepath.Join(h.dir, "1", "sender", "h1", "test.properties"))
	require.NoError(t, err)
	assert.Equal(t, senderLog, got)
	got, err = os.ReadFile(filepath.Join(h.dir, "1", "sender", "h1", "rate.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", string(got))
	got, err = os.ReadFile(filepath.Join(h.dir, "1", "receiver", "h2", "receiver.log"))
	require.NoError(t, err)
	assert.Equal(t, receiverLog, got)

	_, err = os.Stat(filepath.Join(h.dir, "1", "sender", "h1", "failed.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestLogTransferDownloader_ConsumesLogResponses(t *testing.T) {
	h := newHarness(t, 0)
	h.worker(t, sender1, map[notes.LogLocation]map[string][]byte{
		notes.LogLastFailed: {"failed.log": []byte("the test failed")},
	})

	require.NoError(t, h.downloader.DownloadLastFailed(sender1))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.downloader.WaitForComplete(ctx))

	assert.Empty(t, h.maestro.Collector().CollectMatching(collector.ByCommand(notes.CmdLog)))
}

func TestLogTransferDownloader_ReportsMissingPeers(t *testing.T) {
	h := newHarness(t, 0)
	h.worker(t, sender1, map[notes.LogLocation]map[string][]byte{
		notes.LogLastSuccessful: {"test.properties": []byte("ok")},
	})
	h.worker(t, receiver1, nil)

	require.NoError(t, h.downloader.DownloadLastSuccessful(sender1))
	require.NoError(t, h.downloader.DownloadLastSuccessful(receiver1))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := h.downloader.WaitForComplete(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), receiver1.Key())
	assert.NotContains(t, err.Error(), sender1.Key())

	_, err = os.Stat(filepath.Join(h.dir, "1", "sender", "h1", "test.properties"))
	assert.NoError(t, err)
}

func TestLogTransferDownloader_IgnoresUnrequestedFiles(t *testing.T) {
	h := newHarness(t, 0)
	origin := notes.Origin{ID: "sender@h1", Peer: sender1}
	h.downloader.onNote(notes.NewLogResponse(origin, notes.LogAny, "stray.log", []byte("data"), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, h.downloader.WaitForComplete(ctx))
	_, err := os.Stat(filepath.Join(h.dir, "1", "sender", "h1", "stray.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestLogTransferDownloader_EvictedTransfersFail(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.downloader.DownloadAny(sender1, "last"))

	origin := notes.Origin{ID: "sender@h1", Peer: sender1}
	first := notes.NewLogResponse(origin, notes.LogAny, "a.log", []byte("aaaaaaaa"), 4)
	second := notes.NewLogResponse(origin, notes.LogAny, "b.log", []byte("bbbbbbbb"), 4)
	h.downloader.onNote(first)
	h.downloader.onNote(second)
	second.Next()
	h.downloader.onNote(second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.downloader.WaitForComplete(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.log")

	got, err := os.ReadFile(filepath.Join(h.dir, "1", "sender", "h1", "b.log"))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbb", string(got))
}

func TestLogTransferDownloader_CorruptFileFails(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.downloader.DownloadLastSuccessful(sender1))

	origin := notes.Origin{ID: "sender@h1", Peer: sender1}
	resp := notes.NewLogResponse(origin, notes.LogLastSuccessful, "a.log", []byte("aaaa"), 0)
	resp.FileHash = notes.FileHash([]byte("something else"))
	h.downloader.onNote(resp)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := h.downloader.WaitForComplete(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed verification")
}
