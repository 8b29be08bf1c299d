package reports

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Downloader retrieves the files a peer produced during a test.
type Downloader interface {
	DownloadLastSuccessful(peer notes.PeerInfo) error
	DownloadLastFailed(peer notes.PeerInfo) error
	// DownloadAny fetches the files of a given test, identified by number, "last" or a log type name.
	DownloadAny(peer notes.PeerInfo, testNumber string) error
	// WaitForComplete blocks until every requested download finished or ctx ends.
	WaitForComplete(ctx context.Context) error
}

const (
	// DefaultMaxTransfers bounds the number of files being reassembled at the same time.
	DefaultMaxTransfers = 64
	// DefaultQuietPeriod is how long no fragment may arrive before a download counts as complete. Peers do not
	// announce how many files they send.
	DefaultQuietPeriod = 250 * time.Millisecond
)

type transfer struct {
	joiner  *notes.LogJoiner
	peerKey string
	settled bool
}

type peerDownload struct {
	peer     notes.PeerInfo
	dir      string
	files    int
	inFlight int
}

// LogTransferDownloader asks peers to send their logs over the broker with Log requests and writes the
// reassembled files below the organizer's directory for the current test.
type LogTransferDownloader struct {
	maestro   *client.Maestro
	organizer *Organizer
	remove    func()
	quiet     time.Duration

	mu           sync.Mutex
	transfers    *lru.Cache
	pending      map[string]*peerDownload
	errs         *multierror.Error
	lastActivity time.Time
	changed      chan struct{}
}

func NewLogTransferDownloader(m *client.Maestro, organizer *Organizer, maxTransfers int) (*LogTransferDownloader, error) {
	if maxTransfers <= 0 {
		maxTransfers = DefaultMaxTransfers
	}
	d := &LogTransferDownloader{
		maestro:   m,
		organizer: organizer,
		quiet:     DefaultQuietPeriod,
		pending:   map[string]*peerDownload{},
		changed:   make(chan struct{}, 1),
	}
	transfers, err := lru.NewWithEvict(maxTransfers, d.onEvict)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	d.transfers = transfers
	d.remove = m.Collector().AddCallback(d.onNote)
	return d, nil
}

func (d *LogTransferDownloader) SetQuietPeriod(quiet time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quiet = quiet
}

// Close stops consuming log responses.
func (d *LogTransferDownloader) Close() {
	d.remove()
}

func (d *LogTransferDownloader) Organizer() *Organizer {
	return d.organizer
}

func (d *LogTransferDownloader) DownloadLastSuccessful(peer notes.PeerInfo) error {
	return d.request(peer, notes.LogLastSuccessful, "")
}

func (d *LogTransferDownloader) DownloadLastFailed(peer notes.PeerInfo) error {
	return d.request(peer, notes.LogLastFailed, "")
}

func (d *LogTransferDownloader) DownloadAny(peer notes.PeerInfo, testNumber string) error {
	return d.request(peer, notes.LogAny, testNumber)
}

func (d *LogTransferDownloader) request(peer notes.PeerInfo, location notes.LogLocation, typeName string) error {
	dir := d.organizer.PeerDir(peer)
	d.mu.Lock()
	d.pending[peer.Key()] = &peerDownload{peer: peer, dir: dir}
	d.mu.Unlock()

	log.Infof("Requesting %s logs from %s", location, peer)
	_, err := d.maestro.Log(peer, location, typeName)
	return err
}

// onNote consumes log responses so that they never reach the collector's buffer.
func (d *LogTransferDownloader) onNote(n notes.Note) bool {
	resp, ok := n.(*notes.LogResponse)
	if !ok {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle(resp)
	return false
}

// handle is called with d.mu held.
func (d *LogTransferDownloader) handle(resp *notes.LogResponse) {
	peerKey := resp.Peer.Key()
	pd, ok := d.pending[peerKey]
	if !ok {
		log.Warnf("Ignoring unrequested file %s from %s", resp.FileName, peerKey)
		return
	}
	d.lastActivity = time.Now()

	key := resp.ID + "/" + resp.FileName
	var t *transfer
	if resp.Index == 0 {
		if old, ok := d.transfers.Peek(key); ok {
			d.settle(old.(*transfer), errors.Errorf("transfer of %s from %s restarted", resp.FileName, peerKey))
		}
		t = &transfer{joiner: notes.NewLogJoiner(resp), peerKey: peerKey}
		pd.inFlight++
		d.transfers.Add(key, t)
	} else {
		v, ok := d.transfers.Get(key)
		if !ok {
			log.Warnf("Dropping fragment %d of %s from %s: no transfer in progress", resp.Index, resp.FileName, peerKey)
			return
		}
		t = v.(*transfer)
	}

	complete, err := t.joiner.Join(resp)
	if err != nil {
		d.settle(t, err)
		d.transfers.Remove(key)
		return
	}
	if !complete {
		return
	}

	path := filepath.Join(pd.dir, sanitize(filepath.Base(resp.FileName)))
	if err := writeFile(path, t.joiner.Bytes()); err != nil {
		d.settle(t, err)
	} else {
		log.Infof("Saved %s from %s to %s", resp.FileName, peerKey, path)
		pd.files++
		d.settle(t, nil)
	}
	d.transfers.Remove(key)
}

// settle is called with d.mu held and marks t as no longer in flight.
func (d *LogTransferDownloader) settle(t *transfer, err error) {
	if t.settled {
		return
	}
	t.settled = true
	if pd, ok := d.pending[t.peerKey]; ok {
		pd.inFlight--
	}
	if err != nil {
		log.WithError(err).Warnf("Transfer of %s from %s failed", t.joiner.FileName, t.peerKey)
		d.errs = multierror.Append(d.errs, err)
	}
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// onEvict runs inside cache operations, which only happen with d.mu held.
func (d *LogTransferDownloader) onEvict(_ interface{}, value interface{}) {
	t := value.(*transfer)
	if !t.settled {
		d.settle(t, errors.Errorf("transfer of %s from %s evicted after %d fragments", t.joiner.FileName, t.peerKey, t.joiner.Received()))
	}
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, content, 0o644))
}

func (d *LogTransferDownloader) completeLocked() bool {
	for _, pd := range d.pending {
		if pd.inFlight > 0 || pd.files == 0 {
			return false
		}
	}
	return true
}

// WaitForComplete returns once every peer asked for files delivered at least one, has no transfer in progress
// and stayed quiet for the quiet period. Peers that delivered nothing by the time ctx ends are reported in the
// returned error.
func (d *LogTransferDownloader) WaitForComplete(ctx context.Context) error {
	for {
		var wake <-chan time.Time
		d.mu.Lock()
		if d.completeLocked() {
			remaining := d.quiet - time.Since(d.lastActivity)
			if remaining <= 0 {
				err := d.errs.ErrorOrNil()
				d.reset()
				d.mu.Unlock()
				return err
			}
			wake = time.After(remaining)
		}
		d.mu.Unlock()

		select {
		case <-d.changed:
		case <-wake:
		case <-ctx.Done():
			d.mu.Lock()
			defer d.mu.Unlock()
			var missing []string
			for key, pd := range d.pending {
				if pd.inFlight > 0 || pd.files == 0 {
					missing = append(missing, key)
				}
			}
			sort.Strings(missing)
			result := d.errs
			for _, key := range missing {
				result = multierror.Append(result, errors.Errorf("files from %s did not arrive in time", key))
			}
			d.reset()
			return result.ErrorOrNil()
		}
	}
}

// reset is called with d.mu held.
func (d *LogTransferDownloader) reset() {
	d.transfers.Purge()
	d.pending = map[string]*peerDownload{}
	d.errs = nil
}
