package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"storyforge/internal/logging"
)

// defaultBlockedCharacters seeds the blocklist when no file is configured.
// Names of characters whose rights holders do not license user-generated
// stories.
var defaultBlockedCharacters = []string{
	"mickey mouse",
	"minnie mouse",
	"donald duck",
	"elsa",
	"spider-man",
	"spiderman",
	"batman",
	"superman",
	"harry potter",
	"pikachu",
	"peppa pig",
	"paw patrol",
}

// Blocklist holds licensed character names checked before any LLM call.
// Matching is case-insensitive substring search.
type Blocklist struct {
	mu      sync.RWMutex
	path    string
	entries []string
}

// LoadBlocklist reads a newline-delimited blocklist file. A missing file
// yields the built-in default set; an empty path yields defaults with no
// file backing.
func LoadBlocklist(path string) (*Blocklist, error) {
	b := &Blocklist{path: path}
	if path == "" {
		b.entries = append([]string(nil), defaultBlockedCharacters...)
		return b, nil
	}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the backing file. Called at load time and by the
// watcher on file changes.
func (b *Blocklist) Reload() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			b.mu.Lock()
			b.entries = append([]string(nil), defaultBlockedCharacters...)
			b.mu.Unlock()
			logging.Safety("blocklist file %s not found, using %d built-in entries", b.path, len(defaultBlockedCharacters))
			return nil
		}
		return err
	}

	entries := make([]string, 0, 64)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	logging.Safety("blocklist loaded: %d entries from %s", len(entries), b.path)
	return nil
}

// Match returns the blocked names found in text, in blocklist order.
func (b *Blocklist) Match(text string) []string {
	lower := strings.ToLower(text)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var hits []string
	for _, entry := range b.entries {
		if strings.Contains(lower, entry) {
			hits = append(hits, entry)
		}
	}
	return hits
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Watch reloads the blocklist whenever its backing file changes. Blocks
// until ctx is cancelled. Rapid saves are debounced.
func (b *Blocklist) Watch(ctx context.Context) error {
	if b.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// watches on the file itself.
	dir := filepath.Dir(b.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logging.Safety("watching blocklist: %s", b.path)

	var lastReload time.Time
	const debounce = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(b.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < debounce {
				continue
			}
			lastReload = time.Now()
			if err := b.Reload(); err != nil {
				logging.Get(logging.CategorySafety).Warn("blocklist reload failed: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategorySafety).Warn("blocklist watcher error: %v", err)
		}
	}
}
