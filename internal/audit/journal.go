package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hradmin/internal/log"
	"github.com/felixgeelhaar/hradmin/internal/session"
)

const (
	currentName   = "audit.jsonl"
	rotatedPrefix = "audit-"
	rotatedSuffix = ".jsonl"
)

// Config configures a Journal.
type Config struct {
	// Dir holds the journal files.
	Dir string

	// MaxFileSize is the size in bytes past which the journal is rotated.
	MaxFileSize int64

	// MaxFiles is the number of rotated files kept.
	MaxFiles int

	Enabled bool

	// Command is stamped on every event.
	Command string

	Logger *log.Logger
}

// Journal appends events to Dir/audit.jsonl, rotating it when it grows past
// MaxFileSize. The file is opened on the first Record, so runs that record
// nothing leave no trace on disk.
type Journal struct {
	cfg        Config
	invocation string
	logger     *log.Logger

	mu   sync.Mutex
	file *os.File
}

// NewJournal returns a Journal for cfg. A disabled journal accepts and
// drops every event.
func NewJournal(cfg Config) *Journal {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.MaxFiles < 0 {
		cfg.MaxFiles = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Journal{
		cfg:        cfg,
		invocation: uuid.NewString(),
		logger:     logger.WithComponent("audit"),
	}
}

// Path is the current journal file.
func (j *Journal) Path() string {
	return filepath.Join(j.cfg.Dir, currentName)
}

// Enabled reports whether events are written.
func (j *Journal) Enabled() bool { return j.cfg.Enabled }

// Record appends e.
func (j *Journal) Record(e *Event) error {
	if !j.cfg.Enabled {
		return nil
	}
	e.Invocation = j.invocation
	if e.Command == "" {
		e.Command = j.cfg.Command
	}
	line, err := e.MarshalLine()
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.open(); err != nil {
		return err
	}
	if err := j.checkRotation(); err != nil {
		return fmt.Errorf("audit rotation failed: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Recent returns up to n of the newest events, oldest first, reading
// rotated files as needed. n <= 0 returns everything kept.
func (j *Journal) Recent(n int) ([]*Event, error) {
	files, err := j.rotatedFiles()
	if err != nil {
		return nil, err
	}
	files = append(files, j.Path())

	var events []*Event
	for i := len(files) - 1; i >= 0; i-- {
		chunk, err := readFile(files[i])
		if err != nil {
			return nil, err
		}
		events = append(chunk, events...)
		if n > 0 && len(events) >= n {
			return events[len(events)-n:], nil
		}
	}
	return events, nil
}

func (j *Journal) open() error {
	if j.file != nil {
		return nil
	}
	if err := os.MkdirAll(j.cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(j.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}
	j.file = f
	return nil
}

func (j *Journal) checkRotation() error {
	info, err := j.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < j.cfg.MaxFileSize {
		return nil
	}
	return j.rotate()
}

func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return err
	}
	j.file = nil

	rotated := filepath.Join(j.cfg.Dir, rotatedPrefix+time.Now().UTC().Format("20060102T150405.000000000")+rotatedSuffix)
	if err := os.Rename(j.Path(), rotated); err != nil {
		return err
	}
	if err := j.cleanupOldFiles(); err != nil {
		j.logger.WithError(err).Warn("failed to remove old audit files")
	}
	return j.open()
}

// cleanupOldFiles keeps the newest MaxFiles rotated files.
func (j *Journal) cleanupOldFiles() error {
	files, err := j.rotatedFiles()
	if err != nil {
		return err
	}
	for len(files) > j.cfg.MaxFiles {
		if err := os.Remove(files[0]); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}

// rotatedFiles lists rotated journals, oldest first.
func (j *Journal) rotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(j.cfg.Dir, rotatedPrefix+"*"+rotatedSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func readFile(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}
	defer f.Close()

	var events []*Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		// A torn last line from a crash is skipped rather than failing the read.
		e, err := ParseLine(scanner.Bytes())
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit journal: %w", err)
	}
	return events, nil
}

// Watchable is a session that announces its state changes.
type Watchable interface {
	OnChange(fn func(session.Snapshot)) func()
}

// Watch records session transitions: restores, rejected credentials,
// sign-ins, sign-outs and profile changes. It returns the unsubscribe func.
func (j *Journal) Watch(sess Watchable) func() {
	var prev session.Snapshot
	return sess.OnChange(func(next session.Snapshot) {
		if e := transition(prev, next); e != nil {
			if err := j.Record(e); err != nil {
				j.logger.WithError(err).Warn("failed to record audit event")
			}
		}
		prev = next
	})
}

func transition(prev, next session.Snapshot) *Event {
	// Only the startup validation publishes Initializing with a credential.
	validating := prev.Status == session.StatusInitializing && prev.Credential != ""
	switch {
	case validating && next.Authenticated():
		return NewEvent(EventSessionRestored, "stored credential accepted").WithUser(username(next))
	case validating && next.Status == session.StatusUnauthenticated:
		return NewEvent(EventCredentialRejected, "stored credential rejected, signed out")
	case next.Authenticated() && (!prev.Authenticated() || prev.Credential != next.Credential):
		return NewEvent(EventLogin, "signed in").
			WithUser(username(next)).
			WithData("roles", next.Identity.Roles())
	case prev.Authenticated() && next.Status == session.StatusUnauthenticated:
		return NewEvent(EventLogout, "signed out").WithUser(username(prev))
	case prev.Authenticated() && next.Authenticated():
		return NewEvent(EventProfileUpdated, "profile updated").WithUser(username(next))
	}
	return nil
}

func username(s session.Snapshot) string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.User().Username
}
