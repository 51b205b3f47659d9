package sessions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/orbit/internal/domain"
)

// FileStore keeps one directory per user with meta.json and messages.jsonl.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
	now     func() time.Time
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir, now: time.Now}
}

func (s *FileStore) userDir(userID string) string {
	return filepath.Join(s.baseDir, userID)
}

func (s *FileStore) metaPath(userID string) string {
	return filepath.Join(s.userDir(userID), "meta.json")
}

func (s *FileStore) messagesPath(userID string) string {
	return filepath.Join(s.userDir(userID), "messages.jsonl")
}

func validUserID(userID string) error {
	if userID == "" || userID == "." || userID == ".." || strings.ContainsAny(userID, `/\`) {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}

// Append adds msg to the end of the user's transcript, creating it on first use.
func (s *FileStore) Append(userID string, msg domain.ChatMessage) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.userDir(userID), 0o700); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	f, err := os.OpenFile(s.messagesPath(userID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	now := s.now()
	t, err := s.readMeta(userID)
	if errors.Is(err, ErrNotFound) {
		t = &Transcript{UserID: userID, CreatedAt: now}
	} else if err != nil {
		return err
	}
	t.MessageCount++
	t.UpdatedAt = now
	return s.writeMeta(t)
}

// Load returns the last limit messages in insertion order. limit <= 0 loads
// everything.
func (s *FileStore) Load(userID string, limit int) ([]domain.ChatMessage, error) {
	if err := validUserID(userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.messagesPath(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var messages []domain.ChatMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg domain.ChatMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // skip corrupted lines
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Get reads the transcript metadata of a user.
func (s *FileStore) Get(userID string) (*Transcript, error) {
	if err := validUserID(userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(userID)
}

// List returns every stored transcript, most recently updated first.
func (s *FileStore) List() ([]*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transcripts dir: %w", err)
	}

	var out []*Transcript
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		t, err := s.readMeta(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Clear removes the user's transcript. Clearing a missing transcript is a no-op.
func (s *FileStore) Clear(userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.userDir(userID)); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}

// writeMeta replaces meta.json through a temp file and rename.
func (s *FileStore) writeMeta(t *Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	path := s.metaPath(t.UserID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

func (s *FileStore) readMeta(userID string) (*Transcript, error) {
	data, err := os.ReadFile(s.metaPath(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return &t, nil
}
