package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ugc-studio/pkg/logger"
)

const (
	chatsDir   = "chats"
	backupDir  = "backup"
	indexFile  = "chats.json"
	dirPerm    = 0755
	filePerm   = 0644
	tempSuffix = ".tmp"
)

// DiskStorage keeps one JSON file per chat plus an index file, with a
// bounded cache of recently used chats.
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	index     map[string]*ChatIndex
	cache     map[string]*Chat
	cacheSize int
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	return &DiskStorage{
		dataDir:   dataDir,
		index:     make(map[string]*ChatIndex),
		cache:     make(map[string]*Chat),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	for _, dir := range []string{d.dataDir, filepath.Join(d.dataDir, chatsDir), filepath.Join(d.dataDir, backupDir)} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
	}

	if err := d.loadIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Infof("Disk storage initialized at %s with %d chats", d.dataDir, len(d.index))
	return nil
}

func (d *DiskStorage) chatPath(chatID string) string {
	return filepath.Join(d.dataDir, chatsDir, chatID+".json")
}

func (d *DiskStorage) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(d.dataDir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return d.rebuildIndex()
	}
	if err != nil {
		return err
	}

	var rows []*ChatIndex
	if err := json.Unmarshal(data, &rows); err != nil {
		logger.Warnf("Chat index is corrupt, rebuilding: %v", err)
		return d.rebuildIndex()
	}
	for _, row := range rows {
		d.index[row.ID] = row
	}
	return nil
}

// rebuildIndex scans the chat files, for first start or a lost index.
func (d *DiskStorage) rebuildIndex() error {
	files, err := os.ReadDir(filepath.Join(d.dataDir, chatsDir))
	if err != nil {
		return err
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		chatID := file.Name()[:len(file.Name())-len(".json")]
		c, err := d.readChat(chatID)
		if err != nil {
			logger.Errorf("Failed to load chat %s for index rebuild: %v", chatID, err)
			continue
		}
		d.index[c.ID] = indexOf(c)
	}
	return d.saveIndex()
}

func (d *DiskStorage) saveIndex() error {
	rows := make([]*ChatIndex, 0, len(d.index))
	for _, row := range d.index {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return writeJSON(filepath.Join(d.dataDir, indexFile), rows)
}

func (d *DiskStorage) readChat(chatID string) (*Chat, error) {
	data, err := os.ReadFile(d.chatPath(chatID))
	if err != nil {
		return nil, err
	}

	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &c, nil
}

// writeJSON writes through a temp file and rename so readers never see a
// partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + tempSuffix
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func (d *DiskStorage) SaveChat(c *Chat) error {
	if err := validateID(c.ID); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeJSON(d.chatPath(c.ID), c); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.index[c.ID] = indexOf(c)
	if err := d.saveIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[c.ID] = c.Clone()
	d.evictCache()
	return nil
}

func (d *DiskStorage) GetChat(chatID string) (*Chat, error) {
	if err := validateID(chatID); err != nil {
		return nil, ErrChatNotFound
	}

	d.mu.RLock()
	if c, exists := d.cache[chatID]; exists {
		d.mu.RUnlock()
		return c.Clone(), nil
	}
	d.mu.RUnlock()

	c, err := d.readChat(chatID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrChatNotFound
		}
		if errors.Is(err, ErrInvalidData) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	d.cache[chatID] = c
	d.evictCache()
	d.mu.Unlock()

	return c.Clone(), nil
}

func (d *DiskStorage) DeleteChat(chatID string) error {
	if err := validateID(chatID); err != nil {
		return ErrChatNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.chatPath(chatID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrChatNotFound
		}
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	delete(d.cache, chatID)
	delete(d.index, chatID)
	if err := d.saveIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskStorage) ListChats(owner string) ([]*ChatIndex, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*ChatIndex, 0, len(d.index))
	for _, row := range d.index {
		if owner != "" && row.Owner != owner {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (d *DiskStorage) evictCache() {
	if d.cacheSize <= 0 || len(d.cache) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		id        string
		updatedAt time.Time
	}

	entries := make([]cacheEntry, 0, len(d.cache))
	for id, c := range d.cache {
		entries = append(entries, cacheEntry{id: id, updatedAt: c.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*Chat)
	return nil
}

// Backup copies the chat files and the index into a timestamped directory.
func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dst := filepath.Join(d.dataDir, backupDir, fmt.Sprintf("backup_%d", time.Now().Unix()))
	if err := os.MkdirAll(filepath.Join(dst, chatsDir), dirPerm); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	files, err := os.ReadDir(filepath.Join(d.dataDir, chatsDir))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		if err := copyFile(filepath.Join(d.dataDir, chatsDir, file.Name()), filepath.Join(dst, chatsDir, file.Name())); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	if err := copyFile(filepath.Join(d.dataDir, indexFile), filepath.Join(dst, indexFile)); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", dst)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, filePerm)
}
