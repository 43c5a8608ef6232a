package policy

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"overseer/pkg/logx"
)

// Cache is the shared map workspace_root -> compiled_policy spec.md §4.3
// names, kept fresh by an fsnotify watcher: a write to a workspace's policy
// file re-reads and replaces its entry, a remove drops it (the next Read
// misses and falls back to DenyAll). Grounded on the teacher's
// internal/watcher.BinaryWatcher — ref-counted watch set, one watcher
// goroutine draining Events/Errors, ignore-chmod filtering — generalized
// from "watch a binary, restart a service" to "watch a policy file,
// recompile an entry".
type Cache struct {
	mu              sync.RWMutex
	entries         map[string]*Compiled
	policyFileFor   map[string]string // workspace_root -> policy file path
	fileToRoot      map[string]string // policy file path -> workspace_root
	allowedCommands map[string]string

	watcher *fsnotify.Watcher
	logger  *logx.Logger
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewCache starts the background watcher goroutine. allowedCommands is
// passed through to Compile on every (re)load.
func NewCache(allowedCommands map[string]string) (*Cache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	c := &Cache{
		entries:         make(map[string]*Compiled),
		policyFileFor:   make(map[string]string),
		fileToRoot:      make(map[string]string),
		allowedCommands: allowedCommands,
		watcher:         w,
		logger:          logx.NewLogger("policy.cache"),
		closeCh:         make(chan struct{}),
	}

	c.wg.Add(1)
	go c.processEvents()

	return c, nil
}

// Watch registers workspaceRoot's policy file (conventionally
// <workspaceRoot>/.overseer-policy.json) with the cache, loading it
// immediately so Read never misses before the first fsnotify event.
func (c *Cache) Watch(workspaceRoot, policyFile string) error {
	c.mu.Lock()
	if old, ok := c.policyFileFor[workspaceRoot]; ok && old != policyFile {
		_ = c.watcher.Remove(old)
		delete(c.fileToRoot, old)
	}
	c.policyFileFor[workspaceRoot] = policyFile
	c.fileToRoot[policyFile] = workspaceRoot
	c.entries[workspaceRoot] = Load(policyFile, c.allowedCommands)
	c.mu.Unlock()

	if err := c.watcher.Add(policyFile); err != nil {
		// Watching a not-yet-created policy file fails on some platforms;
		// the compiled entry already defaults to deny-all via Load above,
		// so this is not fatal to the caller.
		c.logger.Debug("policy cache: could not watch %s: %v", policyFile, err)
	}
	return nil
}

// Unwatch stops tracking workspaceRoot and removes its cached entry.
func (c *Cache) Unwatch(workspaceRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	policyFile, ok := c.policyFileFor[workspaceRoot]
	if !ok {
		return
	}
	_ = c.watcher.Remove(policyFile)
	delete(c.policyFileFor, workspaceRoot)
	delete(c.fileToRoot, policyFile)
	delete(c.entries, workspaceRoot)
}

// Read returns the compiled policy for workspaceRoot, or DenyAll if it has
// never been loaded (or was removed).
func (c *Cache) Read(workspaceRoot string) *Compiled {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[workspaceRoot]; ok {
		return entry
	}
	return DenyAll()
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher.
func (c *Cache) Close() error {
	close(c.closeCh)
	err := c.watcher.Close()
	c.wg.Wait()
	return err
}

func (c *Cache) processEvents() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Debug("policy cache watch error: %v", err)
		}
	}
}

func (c *Cache) handleEvent(event fsnotify.Event) {
	c.mu.Lock()
	root, tracked := c.fileToRoot[event.Name]
	c.mu.Unlock()
	if !tracked {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		c.mu.Lock()
		delete(c.entries, root)
		c.mu.Unlock()
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		compiled := Load(event.Name, c.allowedCommands)
		c.mu.Lock()
		c.entries[root] = compiled
		c.mu.Unlock()
	}
}
