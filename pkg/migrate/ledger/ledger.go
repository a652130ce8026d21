// package ledger
//
// remembers which table files were imported successfully so a rerun does not insert
// them twice. the list is a plain text file with one file name per line
package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileName : default ledger name inside the migration root
const FileName = "imported.lst"

// Ledger : set of imported file names, safe for concurrent use
type Ledger struct {
	fs   afero.Fs
	path string

	mu    sync.Mutex
	names map[string]struct{}
	dirty bool
}

// Open : loads the ledger at path, a missing file is an empty ledger
func Open(fs afero.Fs, path string) (*Ledger, error) {
	l := &Ledger{
		fs:    fs,
		path:  path,
		names: map[string]struct{}{},
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return l, nil
		}
		return nil, fmt.Errorf("reading ledger %s : %w", path, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			l.names[name] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger %s : %w", path, err)
	}
	return l, nil
}

func key(file string) string {
	return filepath.Base(file)
}

// Contains : true when the file with this base name has been imported
func (l *Ledger) Contains(file string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.names[key(file)]
	return ok
}

// Mark : records a successful import and persists the ledger right away so a crash
// later in the run does not forget it
func (l *Ledger) Mark(file string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names[key(file)] = struct{}{}
	l.dirty = true
	return l.flush()
}

// Names : imported file names in sorted order
func (l *Ledger) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]string, 0, len(l.names))
	for n := range l.names {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}

// Close : writes the ledger if anything changed since the last write
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flush()
}

// callers hold mu. the new content goes to a temp file that replaces the ledger
func (l *Ledger) flush() error {
	if !l.dirty {
		return nil
	}
	names := make([]string, 0, len(l.names))
	for n := range l.names {
		names = append(names, n)
	}
	sort.Strings(names)

	tmp, err := afero.TempFile(l.fs, filepath.Dir(l.path), "tmp-"+filepath.Base(l.path)+"-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for _, n := range names {
		w.WriteString(n)
		w.WriteByte('\n')
	}
	err = w.Flush()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = l.fs.Rename(tmp.Name(), l.path)
	}
	if err != nil {
		_ = l.fs.Remove(tmp.Name())
		return fmt.Errorf("writing ledger %s : %w", l.path, err)
	}
	l.dirty = false
	return nil
}
