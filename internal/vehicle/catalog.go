package vehicle

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// MaxLogs is the number of logs a catalog can hold. Log ids and counts are 16-bit on
// the wire, so only the newest MaxLogs logs are offered.
const MaxLogs = math.MaxUint16

// Log is a log file offered by the simulated vehicle.
type Log struct {
	Path    string
	Size    uint32
	TimeUTC uint32
}

// Catalog lists the logs in a directory, oldest first. The index of a log in the
// catalog is its MAVLink log id.
type Catalog struct {
	dir    string
	logger *zap.Logger

	mu   sync.RWMutex
	logs []Log
}

// NewCatalog scans dir for .ulg and .ulg.gz files.
func NewCatalog(dir string, logger *zap.Logger) (*Catalog, error) {
	c := &Catalog{dir: dir, logger: logger}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

// Rescan rebuilds the catalog from the directory contents.
func (c *Catalog) Rescan() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	var logs []Log
	for _, entry := range entries {
		name := entry.Name()
		// Ignore hidden files and files that are still being written by editors.
		if entry.IsDir() || strings.HasPrefix(name, ".") || !file.IsLog(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.dir, name)
		size, err := file.Size(path)
		if err != nil {
			c.logger.Warn("skipping unreadable log", zap.String("path", path), zap.Error(err))
			continue
		}
		if size > math.MaxUint32 {
			c.logger.Warn("skipping log larger than 4 GiB", zap.String("path", path), zap.Int64("size", size))
			continue
		}
		logs = append(logs, Log{Path: path, Size: uint32(size), TimeUTC: uint32(info.ModTime().Unix())})
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].TimeUTC == logs[j].TimeUTC {
			return logs[i].Path < logs[j].Path
		}
		return logs[i].TimeUTC < logs[j].TimeUTC
	})
	if len(logs) > MaxLogs {
		c.logger.Warn("too many logs, offering the newest only",
			zap.String("dir", c.dir),
			zap.Int("logs", len(logs)),
			zap.Int("offered", MaxLogs),
		)
		logs = logs[len(logs)-MaxLogs:]
	}

	c.mu.Lock()
	c.logs = logs
	c.mu.Unlock()
	c.logger.Debug("catalog scanned", zap.String("dir", c.dir), zap.Int("logs", len(logs)))
	return nil
}

// Logs returns the logs in id order.
func (c *Catalog) Logs() []Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs)
}

// Get returns the log with the provided id.
func (c *Catalog) Get(id uint16) (Log, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.logs) {
		return Log{}, false
	}
	return c.logs[id], true
}

// Watch rescans the catalog whenever the directory changes, until the context is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(c.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !file.IsLog(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := c.Rescan(); err != nil {
					c.logger.Warn("rescanning log directory", zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watching log directory", zap.Error(err))
		}
	}
}
