package callstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/slingshot-ai/slingdial/internal/dialog"
)

// FileStore persists calls as directories with meta.json, snapshot.json and
// transcript.jsonl. Metadata and snapshot writes are atomic (temp file +
// rename) so a reader never observes a torn record.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) callDir(threadID string) string {
	return filepath.Join(fs.baseDir, threadID)
}

func (fs *FileStore) metaPath(threadID string) string {
	return filepath.Join(fs.callDir(threadID), "meta.json")
}

func (fs *FileStore) snapshotPath(threadID string) string {
	return filepath.Join(fs.callDir(threadID), "snapshot.json")
}

func (fs *FileStore) transcriptPath(threadID string) string {
	return filepath.Join(fs.callDir(threadID), "transcript.jsonl")
}

// Create initialises a call directory with its metadata.
func (fs *FileStore) Create(rec *Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if rec.ThreadID == "" {
		return fmt.Errorf("call record has no thread id")
	}

	now := time.Now()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusActive
	}

	if err := os.MkdirAll(fs.callDir(rec.ThreadID), 0o755); err != nil {
		return fmt.Errorf("create call dir: %w", err)
	}
	return fs.writeMeta(rec)
}

// Get reads call metadata by thread id.
func (fs *FileStore) Get(threadID string) (*Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readMeta(threadID)
}

// Save atomically rewrites metadata and the session snapshot.
func (fs *FileStore) Save(rec *Record, snap dialog.Snapshot) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec.UpdatedAt = time.Now()
	if err := fs.writeMeta(rec); err != nil {
		return err
	}
	return writeJSONAtomic(fs.snapshotPath(rec.ThreadID), snap)
}

// LoadSnapshot reads the persisted session snapshot.
func (fs *FileStore) LoadSnapshot(threadID string) (dialog.Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var snap dialog.Snapshot
	data, err := os.ReadFile(fs.snapshotPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return snap, fmt.Errorf("call not found: %s", threadID)
		}
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// AppendTranscript appends one spoken line and bumps the metadata.
func (fs *FileStore) AppendTranscript(threadID string, entry TranscriptEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}

	f, err := os.OpenFile(fs.transcriptPath(threadID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	rec, err := fs.readMeta(threadID)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	return fs.writeMeta(rec)
}

// LoadTranscript reads all spoken lines of a call.
func (fs *FileStore) LoadTranscript(threadID string) ([]TranscriptEntry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	f, err := os.Open(fs.transcriptPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var entries []TranscriptEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry TranscriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // skip corrupted lines
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}

// Delete removes the call record. The outbound call loop treats a missing
// record as the call-ended signal.
func (fs *FileStore) Delete(threadID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return os.RemoveAll(fs.callDir(threadID))
}

// Exists reports whether the call record is still present.
func (fs *FileStore) Exists(threadID string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, err := os.Stat(fs.metaPath(threadID))
	return err == nil
}

// List returns all call records sorted by UpdatedAt descending.
func (fs *FileStore) List() ([]*Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list calls dir: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := fs.readMeta(entry.Name())
		if err != nil {
			continue // skip corrupted records
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (fs *FileStore) writeMeta(rec *Record) error {
	return writeJSONAtomic(fs.metaPath(rec.ThreadID), rec)
}

func (fs *FileStore) readMeta(threadID string) (*Record, error) {
	data, err := os.ReadFile(fs.metaPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("call not found: %s", threadID)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return &rec, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
