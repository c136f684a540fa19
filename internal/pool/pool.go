// Package pool manages the set of unissued VPN configuration files. A
// credential lives in the pool directory while available and is moved to a
// staging directory the moment it is taken, so two concurrent takes can
// never hand out the same file and a crash between hand-off and ledger
// recording leaves a staged copy to reconcile instead of a lost key.
package pool

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Pool errors.
var (
	// ErrExhausted indicates the pool has no credentials left.
	ErrExhausted = errors.New("no credentials available")
	// ErrBadArchive indicates the uploaded container is not a readable zip.
	ErrBadArchive = errors.New("malformed archive")
	// ErrArchiveTooLarge indicates the archive exceeds the size cap.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
	// ErrTooManyEntries indicates the archive holds more qualifying
	// entries than the configured cap.
	ErrTooManyEntries = errors.New("archive exceeds entry limit")
)

const confSuffix = ".conf"

// Credential is one distributable configuration file taken from the pool.
type Credential struct {
	Filename string
	Payload  []byte
}

// Pool hands out credential files from a directory, one file per issuance.
type Pool struct {
	mu             sync.Mutex
	dir            string
	issuedDir      string
	maxArchiveSize int64
	maxEntries     int
}

// New constructs a Pool over dir, staging taken files in issuedDir.
// maxArchiveSize and maxEntries bound archive ingestion.
func New(dir, issuedDir string, maxArchiveSize int64, maxEntries int) *Pool {
	return &Pool{dir: dir, issuedDir: issuedDir, maxArchiveSize: maxArchiveSize, maxEntries: maxEntries}
}

// Available returns the filenames currently in the pool in lexicographic
// order. Lexicographic ordering keeps take-next deterministic across
// restarts and platforms.
func (p *Pool) Available() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked()
}

// Remaining returns the number of credentials left in the pool.
func (p *Pool) Remaining() (int, error) {
	names, err := p.Available()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// TakeNext removes the first available credential from the pool and
// returns it. The file is renamed into the staging directory before the
// payload is handed out, so no other take can observe it.
func (p *Pool) TakeNext() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	names, err := p.availableLocked()
	if err != nil {
		return Credential{}, err
	}
	if len(names) == 0 {
		return Credential{}, ErrExhausted
	}

	name := names[0]
	src := filepath.Join(p.dir, name)
	payload, err := os.ReadFile(src)
	if err != nil {
		return Credential{}, fmt.Errorf("pool: read %s: %w", name, err)
	}
	if err = os.Rename(src, filepath.Join(p.issuedDir, name)); err != nil {
		return Credential{}, fmt.Errorf("pool: stage %s: %w", name, err)
	}
	return Credential{Filename: name, Payload: payload}, nil
}

// Restore returns a taken credential to the pool after a failed delivery.
func (p *Pool) Restore(filename string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Rename(filepath.Join(p.issuedDir, filename), filepath.Join(p.dir, filename)); err != nil {
		return fmt.Errorf("pool: restore %s: %w", filename, err)
	}
	return nil
}

// Finish discards the staged copy of a delivered and recorded credential.
func (p *Pool) Finish(filename string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(filepath.Join(p.issuedDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pool: discard %s: %w", filename, err)
	}
	return nil
}

// Reconcile resolves staged files left behind by a crash between hand-off
// and ledger recording. Files the ledger already knows are discarded;
// files it does not are returned to the pool. It reports how many files
// were returned and how many discarded.
func (p *Pool) Reconcile(inLedger func(filename string) bool) (returned, discarded int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.issuedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("pool: list staging: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		staged := filepath.Join(p.issuedDir, name)
		if inLedger(name) {
			if errRemove := os.Remove(staged); errRemove != nil {
				return returned, discarded, fmt.Errorf("pool: discard staged %s: %w", name, errRemove)
			}
			discarded++
			continue
		}
		if errRename := os.Rename(staged, filepath.Join(p.dir, name)); errRename != nil {
			return returned, discarded, fmt.Errorf("pool: return staged %s: %w", name, errRename)
		}
		log.WithField("file", name).Warn("returned undelivered credential to pool")
		returned++
	}
	return returned, discarded, nil
}

// IngestArchive unpacks the qualifying entries of a zip archive into the
// pool. An entry qualifies when its name ends in .conf and it is not
// macOS metadata. It returns how many files were added and how many
// replaced existing pool files. The archive is fully validated and
// extracted aside before anything touches the pool, so a rejected upload
// leaves the pool unchanged.
func (p *Pool) IngestArchive(data []byte) (added, replaced int, err error) {
	if int64(len(data)) > p.maxArchiveSize {
		return 0, 0, ErrArchiveTooLarge
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var qualifying []*zip.File
	for _, entry := range reader.File {
		if !qualifies(entry.Name) {
			continue
		}
		qualifying = append(qualifying, entry)
	}
	if len(qualifying) > p.maxEntries {
		return 0, 0, ErrTooManyEntries
	}

	// Duplicate basenames inside one archive collapse to the last entry.
	payloads := make(map[string][]byte, len(qualifying))
	for _, entry := range qualifying {
		rc, errOpen := entry.Open()
		if errOpen != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrBadArchive, errOpen)
		}
		payload, errRead := io.ReadAll(io.LimitReader(rc, p.maxArchiveSize+1))
		rc.Close()
		if errRead != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrBadArchive, errRead)
		}
		if int64(len(payload)) > p.maxArchiveSize {
			return 0, 0, ErrArchiveTooLarge
		}
		payloads[filepath.Base(entry.Name)] = payload
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := filepath.Join(p.dir, name)
		_, errStat := os.Stat(target)
		exists := errStat == nil

		if errWrite := writeFileAtomic(target, payloads[name]); errWrite != nil {
			return added, replaced, fmt.Errorf("pool: write %s: %w", name, errWrite)
		}
		if exists {
			replaced++
		} else {
			added++
		}
	}
	return added, replaced, nil
}

func (p *Pool) availableLocked() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pool: list %s: %w", p.dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), confSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func qualifies(name string) bool {
	if !strings.HasSuffix(name, confSuffix) {
		return false
	}
	if strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	return !strings.HasPrefix(filepath.Base(name), "._")
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
