package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

const (
	primaryFile = "app-state.json"
	hotFile     = "session-state.json"

	// DefaultMaxBytes is the size ceiling of a single record.
	DefaultMaxBytes = 5 << 20
)

var localAAD = []byte("shellkeep/local-state")

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	Dir      string
	MaxBytes int
	// Cipher seals records at rest when set.
	Cipher *adaptive.Cipher
	Clock  func() time.Time
}

// LocalStore is the synchronous file backend.
//
// The primary record holds the full snapshot. The hot record mirrors the
// window scroll offset and the active tab of the saved path and is merged
// over the primary on restore.
type LocalStore struct {
	dir      string
	maxBytes int
	cipher   *adaptive.Cipher
	clock    func() time.Time

	mu sync.Mutex
}

// hotRecord is the contents of the hot file.
type hotRecord struct {
	Path      string  `json:"path"`
	ScrollY   float64 `json:"scroll_y"`
	ActiveTab string  `json:"active_tab,omitempty"`
	SavedAt   int64   `json:"saved_at"`
}

// NewLocalStore creates the state directory if needed.
func NewLocalStore(opts LocalOptions) (*LocalStore, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("local store: dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("local store: create dir: %w", err)
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &LocalStore{
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		cipher:   opts.Cipher,
		clock:    opts.Clock,
	}, nil
}

func (l *LocalStore) Name() string { return "local" }

// Save stamps the snapshot with the current time and replaces both records.
func (l *LocalStore) Save(ctx context.Context, s *domain.Snapshot) (err error) {
	defer recoverInto(&err, l.Name(), "save")
	if s == nil {
		return domain.ErrSnapshotInvalid.WithDetails("nil snapshot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.Clone()
	snap.CapturedAt = l.clock().UnixMilli()

	data, err := domain.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	primary, err := l.seal(data)
	if err != nil {
		return err
	}
	if len(primary) > l.maxBytes {
		return domain.ErrQuotaExceeded.WithDetails(fmt.Sprintf("%d bytes exceeds %d", len(primary), l.maxBytes))
	}

	hot := hotRecord{Path: snap.Path(), SavedAt: snap.CapturedAt}
	if w, ok := snap.WindowScroll(); ok {
		hot.ScrollY = w.Y
	}
	if tab, ok := snap.ApplicationData.ActiveTabs[hot.Path]; ok {
		hot.ActiveTab = tab.Tab
	}
	hotData, err := json.Marshal(hot)
	if err != nil {
		return fmt.Errorf("encode hot record: %w", err)
	}
	if hotData, err = l.seal(hotData); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := writeAtomic(filepath.Join(l.dir, primaryFile), primary); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(l.dir, hotFile), hotData)
}

// Restore reads the primary record and merges the hot record over it.
func (l *LocalStore) Restore(ctx context.Context) (s *domain.Snapshot, err error) {
	defer recoverInto(&err, l.Name(), "restore")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.readPrimary()
	if err != nil || snap == nil {
		return nil, err
	}

	hot, err := l.readHot()
	if err != nil || hot == nil || hot.Path != snap.Path() {
		// The hot record is advisory.
		return snap, nil
	}
	mergeHot(snap, hot)
	return snap, nil
}

// ClearExpired removes both records when the primary is older than maxAge
// or unreadable.
func (l *LocalStore) ClearExpired(ctx context.Context, maxAge time.Duration) (err error) {
	defer recoverInto(&err, l.Name(), "clear")
	maxAge = maxAgeOrDefault(maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	snap, rerr := l.readPrimary()
	if rerr == nil && (snap == nil || snap.Age(l.clock()) <= maxAge) {
		return nil
	}
	return l.removeAll()
}

// Clear removes both records unconditionally.
func (l *LocalStore) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeAll()
}

func (l *LocalStore) removeAll() error {
	for _, name := range []string{primaryFile, hotFile} {
		if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (l *LocalStore) readPrimary() (*domain.Snapshot, error) {
	data, err := l.readFile(primaryFile)
	if err != nil || data == nil {
		return nil, err
	}
	return domain.DecodeSnapshot(data)
}

func (l *LocalStore) readHot() (*hotRecord, error) {
	data, err := l.readFile(hotFile)
	if err != nil || data == nil {
		return nil, err
	}
	var hot hotRecord
	if err := json.Unmarshal(data, &hot); err != nil {
		return nil, err
	}
	return &hot, nil
}

// readFile returns nil data for a missing file.
func (l *LocalStore) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if l.cipher == nil {
		return data, nil
	}
	plain, err := l.cipher.Open(data, localAAD)
	if err != nil {
		return nil, domain.ErrSnapshotInvalid.WithCause(err)
	}
	return plain, nil
}

func (l *LocalStore) seal(data []byte) ([]byte, error) {
	if l.cipher == nil {
		return data, nil
	}
	sealed, err := l.cipher.Seal(data, localAAD)
	if err != nil {
		return nil, fmt.Errorf("seal record: %w", err)
	}
	return sealed, nil
}

func mergeHot(snap *domain.Snapshot, hot *hotRecord) {
	merged := false
	for i := range snap.ScrollPositions {
		if snap.ScrollPositions[i].Target == domain.WindowTarget {
			snap.ScrollPositions[i].Y = hot.ScrollY
			merged = true
			break
		}
	}
	if !merged {
		snap.ScrollPositions = append([]domain.ScrollOffset{{Y: hot.ScrollY, Target: domain.WindowTarget}},
			snap.ScrollPositions...)
	}
	if hot.ActiveTab != "" {
		if snap.ApplicationData.ActiveTabs == nil {
			snap.ApplicationData.ActiveTabs = make(map[string]domain.ActiveTab)
		}
		if cur, ok := snap.ApplicationData.ActiveTabs[hot.Path]; !ok || cur.Tab != hot.ActiveTab {
			snap.ApplicationData.ActiveTabs[hot.Path] = domain.ActiveTab{Tab: hot.ActiveTab, At: hot.SavedAt}
		}
	}
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
