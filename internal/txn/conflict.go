package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
)

var ErrConflict = fmt.Errorf("transaction conflict")

// Fingerprint summarizes every row file's size and modification time under
// baseDir/tables into one short digest. Comparing the fingerprint taken at
// BEGIN against the one taken at COMMIT is how a concurrent writer from
// another process is detected: this engine serializes writers within one
// process via its own in-memory lock, but two separate processes opening
// the same database directory are only caught this way.
func Fingerprint(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, "tables")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("fingerprint tables dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "%s|%d|%d\n", name, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Watcher observes a database root directory for external modification
// (another process writing a table file directly, a hand-edited catalog,
// etc.) and reports it through Changed. It is a best-effort signal layered
// on top of Fingerprint, not a replacement for it: a missed event never
// causes an undetected conflict, since every commit still re-checks the
// fingerprint itself.
type Watcher struct {
	watcher *fsnotify.Watcher
	Changed chan string
}

func NewWatcher(baseDir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create directory watcher: %w", err)
	}
	for _, sub := range []string{"", "tables", "indexes"} {
		if err := fw.Add(filepath.Join(baseDir, sub)); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch '%s': %w", sub, err)
		}
	}

	w := &Watcher{watcher: fw, Changed: make(chan string, 16)}
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					select {
					case w.Changed <- ev.Name:
					default:
					}
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
