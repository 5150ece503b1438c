package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/ProbeFlow/internal/adapters/codec"
	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

const (
	pendingDir = "pending"
	archiveDir = "archive"

	// ThroughputWindow is the number of recent uploads averaged by RecentThroughput.
	ThroughputWindow = 32
)

type upload struct {
	bytes int64
	dur   time.Duration
}

// DirSpool is the on-disk outbound queue. Records are written one per file
// under pending/; uploaded files are moved to archive/.
type DirSpool struct {
	root    string
	pending string
	archive string
	codec   codec.Codec
	now     func() time.Time

	mu     sync.Mutex
	window []upload
	next   int
}

func NewDirSpool(dir string, c codec.Codec) (*DirSpool, error) {
	if c == nil {
		c = codec.JSON{}
	}
	s := &DirSpool{
		root:    dir,
		pending: filepath.Join(dir, pendingDir),
		archive: filepath.Join(dir, archiveDir),
		codec:   c,
		now:     time.Now,
		window:  make([]upload, 0, ThroughputWindow),
	}
	for _, d := range []string{s.pending, s.archive} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("spool dir: %w", err)
		}
	}
	return s, nil
}

func (s *DirSpool) Name() string { return "spool" }

// Extension is the suffix of files this spool writes.
func (s *DirSpool) Extension() string { return s.codec.Extension() }

// Accept spools a single record.
func (s *DirSpool) Accept(rec domain.Record) error {
	_, err := s.write(rec)
	return err
}

// WriteBatch spools every record; one failure does not stop the rest.
func (s *DirSpool) WriteBatch(recs []domain.Record) error {
	var errs []error
	for _, rec := range recs {
		if _, err := s.write(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// write encodes rec to a temp file and renames it into pending/, so readers
// never observe a partial file under its final name.
func (s *DirSpool) write(rec domain.Record) (string, error) {
	payload, err := s.codec.Encode(rec)
	if err != nil {
		return "", fmt.Errorf("spool encode %s: %w", rec.ProbeName(), err)
	}

	tmp, err := os.CreateTemp(s.pending, ".spool-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	name := fmt.Sprintf("%020d-%s%s", s.now().UnixNano(), uuid.NewString(), s.codec.Extension())
	if err := os.Rename(tmpName, filepath.Join(s.pending, name)); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return name, nil
}

// ListPendingFiles returns regular files in pending/ whose name ends in ext.
func (s *DirSpool) ListPendingFiles(ext string) ([]ports.QueueFile, error) {
	entries, err := os.ReadDir(s.pending)
	if err != nil {
		return nil, err
	}
	out := make([]ports.QueueFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, entryFile{e})
	}
	return out, nil
}

// ListArchiveFiles returns every entry in archive/, directories included.
func (s *DirSpool) ListArchiveFiles() ([]ports.QueueFile, error) {
	entries, err := os.ReadDir(s.archive)
	if err != nil {
		return nil, err
	}
	out := make([]ports.QueueFile, len(entries))
	for i, e := range entries {
		out[i] = entryFile{e}
	}
	return out, nil
}

// Oldest returns up to max pending file names, oldest first.
func (s *DirSpool) Oldest(max int) ([]string, error) {
	files, err := s.ListPendingFiles(s.codec.Extension())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name()
	}
	sort.Strings(names)
	if max > 0 && len(names) > max {
		names = names[:max]
	}
	return names, nil
}

func (s *DirSpool) ReadPending(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.pending, filepath.Base(name)))
}

// Archive moves a pending file into archive/.
func (s *DirSpool) Archive(name string) error {
	name = filepath.Base(name)
	return os.Rename(filepath.Join(s.pending, name), filepath.Join(s.archive, name))
}

// RecordUpload adds one completed upload to the throughput window.
func (s *DirSpool) RecordUpload(bytes int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := upload{bytes: bytes, dur: d}
	if len(s.window) < ThroughputWindow {
		s.window = append(s.window, u)
		return
	}
	s.window[s.next] = u
	s.next = (s.next + 1) % ThroughputWindow
}

// RecentThroughput is total bytes over total upload time for the window, in
// bytes per second. It is zero before any upload has been recorded.
func (s *DirSpool) RecentThroughput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		bytes int64
		dur   time.Duration
	)
	for _, u := range s.window {
		bytes += u.bytes
		dur += u.dur
	}
	if dur <= 0 {
		return 0
	}
	return float64(bytes) / dur.Seconds()
}

// entryFile defers the stat call until Size is asked for.
type entryFile struct {
	os.DirEntry
}

func (e entryFile) IsFile() bool { return e.Type().IsRegular() }

func (e entryFile) Size() int64 {
	info, err := e.Info()
	if err != nil {
		return 0
	}
	return info.Size()
}

var (
	_ ports.Sink          = (*DirSpool)(nil)
	_ ports.BatchWriter   = (*DirSpool)(nil)
	_ ports.OutboundQueue = (*DirSpool)(nil)
)
