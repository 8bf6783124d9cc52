// Package history stores per-user AI chat transcripts on disk and enforces
// the per-session turn ceiling.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"miyako-bot/internal/apperr"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const notFoundMessage = "找不到您的聊天歷史紀錄"

// Message is one transcript entry
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteFunc sends a prepared conversation to the model and returns its reply
type CompleteFunc func(ctx context.Context, messages []Message) (string, error)

// Store keeps one JSON transcript and an optional prompt override per user
type Store struct {
	dir     string
	counter *Counter
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the archive directory if needed
func NewStore(dir string, counter *Counter, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if counter == nil {
		counter = NewCounter(0)
	}
	return &Store{
		dir:     dir,
		counter: counter,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Counter returns the session turn counter used by AppendTurn
func (s *Store) Counter() *Counter {
	return s.counter
}

// Dir returns the archive directory
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func validUserID(userID string) error {
	if userID == "" || userID != filepath.Base(userID) || strings.HasPrefix(userID, ".") {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}

func (s *Store) transcriptPath(userID string) string {
	return filepath.Join(s.dir, userID+".json")
}

func (s *Store) promptPath(userID string) string {
	return filepath.Join(s.dir, userID+".prompt")
}

// Get returns the user's transcript, empty when none is stored
func (s *Store) Get(userID string) ([]Message, error) {
	if err := validUserID(userID); err != nil {
		return nil, err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.read(userID)
}

// Save replaces the user's transcript. System entries are never stored.
func (s *Store) Save(userID string, messages []Message) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.write(userID, messages)
}

// Exists reports whether the user has a stored transcript
func (s *Store) Exists(userID string) bool {
	if validUserID(userID) != nil {
		return false
	}
	_, err := os.Stat(s.transcriptPath(userID))
	return err == nil
}

// SystemPrompt returns the user's prompt override or def
func (s *Store) SystemPrompt(userID, def string) string {
	if validUserID(userID) != nil {
		return def
	}
	data, err := os.ReadFile(s.promptPath(userID))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to read prompt override", zap.String("user", userID), zap.Error(err))
		}
		return def
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		return prompt
	}
	return def
}

// EditSystemPrompt stores the user's prompt override. An empty prompt
// removes the override.
func (s *Store) EditSystemPrompt(userID, prompt string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		if err := os.Remove(s.promptPath(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove prompt override: %w", err)
		}
		return nil
	}
	return writeAtomic(s.promptPath(userID), []byte(prompt))
}

// EditLastAssistantTurn replaces the content of the most recent assistant
// entry and returns the user message that preceded it. Without an assistant
// entry the transcript is left untouched and a NotFound error is returned.
func (s *Store) EditLastAssistantTurn(userID, content string) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	messages, err := s.read(userID)
	if err != nil {
		return "", err
	}

	_, idx, ok := lo.FindLastIndexOf(messages, func(m Message) bool {
		return m.Role == RoleAssistant
	})
	if !ok {
		return "", apperr.NotFoundf("找不到可以編輯的回應")
	}

	messages[idx].Content = content

	prompt := ""
	for i := idx - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			prompt = messages[i].Content
			break
		}
	}

	if err := s.write(userID, messages); err != nil {
		return "", err
	}
	return prompt, nil
}

// Export returns the path of the user's transcript file
func (s *Store) Export(userID string) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	path := s.transcriptPath(userID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.NotFoundf(notFoundMessage)
		}
		return "", fmt.Errorf("failed to stat transcript: %w", err)
	}
	return path, nil
}

// Delete removes the user's transcript
func (s *Store) Delete(userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.transcriptPath(userID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.NotFoundf(notFoundMessage)
		}
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// AppendTurn runs one conversational turn. The session counter is checked
// first. The model receives the system prompt, the last maxContextTurns
// exchanges (all when <= 0) and the new message; on success the user message
// and the reply are appended to the stored transcript.
func (s *Store) AppendTurn(ctx context.Context, userID, message, defaultPrompt string, maxContextTurns int, complete CompleteFunc) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	if err := s.counter.Acquire(userID); err != nil {
		return "", err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := s.read(userID)
	if err != nil {
		return "", err
	}

	request := BuildContext(s.SystemPrompt(userID, defaultPrompt), stored, maxContextTurns, message)

	reply, err := complete(ctx, request)
	if err != nil {
		return "", err
	}

	stored = append(stored,
		Message{Role: RoleUser, Content: message},
		Message{Role: RoleAssistant, Content: reply},
	)
	if err := s.write(userID, stored); err != nil {
		return "", err
	}

	s.logger.Debug("Chat turn stored",
		zap.String("user", userID),
		zap.Int("entries", len(stored)),
		zap.Int("context", len(request)),
	)
	return reply, nil
}

// BuildContext assembles a model request from a stored transcript
func BuildContext(systemPrompt string, stored []Message, maxContextTurns int, message string) []Message {
	history := lo.Filter(stored, func(m Message, _ int) bool {
		return m.Role != RoleSystem
	})
	if maxContextTurns > 0 && len(history) > maxContextTurns*2 {
		history = history[len(history)-maxContextTurns*2:]
	}

	request := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		request = append(request, Message{Role: RoleSystem, Content: systemPrompt})
	}
	request = append(request, history...)
	return append(request, Message{Role: RoleUser, Content: message})
}

// read must be called with the user lock held
func (s *Store) read(userID string) ([]Message, error) {
	data, err := os.ReadFile(s.transcriptPath(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse transcript of %s: %w", userID, err)
	}
	return messages, nil
}

// write must be called with the user lock held
func (s *Store) write(userID string, messages []Message) error {
	kept := lo.Filter(messages, func(m Message, _ int) bool {
		return m.Role != RoleSystem
	})
	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return writeAtomic(s.transcriptPath(userID), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// List returns the user ids that have a stored transcript
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list history directory: %w", err)
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		users = append(users, strings.TrimSuffix(e.Name(), ".json"))
	}
	return users, nil
}

// LoadPrompts concatenates the given prompt files. Without files the
// fallback is returned.
func LoadPrompts(files []string, fallback string) (string, error) {
	if len(files) == 0 {
		return strings.TrimSpace(fallback), nil
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", f, err)
		}
		parts = append(parts, string(data))
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}
