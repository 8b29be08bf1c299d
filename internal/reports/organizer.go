// Package reports retrieves the logs and reports produced by the peers during a test and stores them on disk.
package reports

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Organizer lays out downloaded files as <dir>/<testNumber>/<role>/<host>/ and keeps track of the current test
// number.
type Organizer struct {
	baseDir string

	mu      sync.Mutex
	current int32
}

// NewOrganizer continues numbering after the highest test number already present in baseDir.
func NewOrganizer(baseDir string) (*Organizer, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	last, err := lastTestNumber(baseDir)
	if err != nil {
		return nil, err
	}
	return &Organizer{baseDir: baseDir, current: last}, nil
}

func lastTestNumber(baseDir string) (int32, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var last int32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil || n < 0 {
			continue
		}
		if int32(n) > last {
			last = int32(n)
		}
	}
	return last, nil
}

func (o *Organizer) BaseDir() string {
	return o.baseDir
}

// Next allocates a new test number and makes it the current one.
func (o *Organizer) Next() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current++
	return o.current
}

// Current is the test number files are currently stored under.
func (o *Organizer) Current() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Organizer) SetCurrent(testNumber int32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = testNumber
}

// Resolve turns the NextTestNumber and LastTestNumber sentinels into an actual test number.
func (o *Organizer) Resolve(testNumber int32) (int32, error) {
	switch {
	case testNumber == notes.NextTestNumber:
		return o.Next(), nil
	case testNumber == notes.LastTestNumber:
		return o.Current(), nil
	case testNumber < 0:
		return 0, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "testNumber",
			Value:   testNumber,
			Message: "test numbers cannot be negative",
		})
	}
	return testNumber, nil
}

// ResolveName is Resolve for the textual forms "next", "last" or a number.
func (o *Organizer) ResolveName(name string) (int32, error) {
	switch strings.ToLower(name) {
	case "next":
		return o.Resolve(notes.NextTestNumber)
	case "last":
		return o.Resolve(notes.LastTestNumber)
	}
	n, err := strconv.ParseInt(name, 10, 32)
	if err != nil {
		return 0, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "testNumber",
			Value:   name,
			Message: "expected next, last or a number",
		})
	}
	return o.Resolve(int32(n))
}

// PeerDir is the directory holding the files of peer for the current test.
func (o *Organizer) PeerDir(peer notes.PeerInfo) string {
	return filepath.Join(o.baseDir, strconv.Itoa(int(o.Current())), peer.Role.String(), sanitize(peer.Host))
}

func sanitize(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" || s == "." {
		return "_"
	}
	return s
}
