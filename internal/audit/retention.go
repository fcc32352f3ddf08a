package audit

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// Archiver moves expired entries out of the in-memory sink into JSONL
// files on disk. Archiving is fail-safe: entries are only pruned after
// the archive file has been written and closed.
//
// Directory layout:
//
//	{dir}/audit/2026-03-10T15-04-05Z.jsonl[.gz]
type Archiver struct {
	sink      *MemorySink
	dir       string
	retention time.Duration
	compress  bool
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewArchiver creates a retention archiver for the memory sink. An
// empty dir defaults to ~/.agentgate/archive.
func NewArchiver(sink *MemorySink, dir string, retentionDays int, compress bool, interval time.Duration) *Archiver {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			dir = "/tmp/agentgate/archive"
		} else {
			dir = filepath.Join(home, ".agentgate", "archive")
		}
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Archiver{
		sink:      sink,
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		compress:  compress,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the archive loop in a background goroutine.
func (a *Archiver) Start() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				if err := a.RunCycle(); err != nil {
					log.Warn().Err(err).Msg("Audit archive cycle failed")
				}
			}
		}
	}()

	log.Info().Str("dir", a.dir).Dur("retention", a.retention).
		Bool("compress", a.compress).Msg("Audit archiver started")
}

// Stop halts the archive loop.
func (a *Archiver) Stop() {
	close(a.stop)
	<-a.done
}

// RunCycle archives everything older than the retention window and
// prunes it from the sink. Nothing is pruned if the write fails.
func (a *Archiver) RunCycle() error {
	cutoff := time.Now().Add(-a.retention)

	expired := expiredEntries(a.sink.Entries(), cutoff)
	if len(expired) == 0 {
		return nil
	}

	path, err := a.writeArchive(expired)
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	pruned := a.sink.PruneBefore(cutoff)
	log.Info().Str("path", path).Int("archived", len(expired)).
		Int("pruned", len(pruned)).Msg("Audit entries archived")
	return nil
}

func (a *Archiver) writeArchive(entries []models.AuditEntry) (string, error) {
	dir := filepath.Join(a.dir, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	var gw *gzip.Writer
	enc := json.NewEncoder(f)
	if a.compress {
		gw = gzip.NewWriter(f)
		enc = json.NewEncoder(gw)
	}

	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			return "", err
		}
	}

	// Close errors surface buffered data that never reached disk; the
	// caller must not prune against a truncated archive.
	if gw != nil {
		if err := gw.Close(); err != nil {
			f.Close()
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func expiredEntries(entries []models.AuditEntry, cutoff time.Time) []models.AuditEntry {
	var expired []models.AuditEntry
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			expired = append(expired, e)
		}
	}
	return expired
}
