package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/ponyo877/chatrelay/server/usecase"
	"go.uber.org/zap"
)

type jsonUser struct {
	Password string `json:"password"`
}

type jsonData struct {
	Users map[string]jsonUser `json:"users"`
	PMs   []pmRecord          `json:"pms"`
}

// JSONRepository keeps everything in one JSON document that is rewritten on
// every mutation.
type JSONRepository struct {
	mu   sync.Mutex
	path string
	data jsonData
}

// NewJSONRepository はファイルを読み込みます。存在しない・壊れている場合は空のストアから始めます。
func NewJSONRepository(path string, logger *zap.Logger) (usecase.Repository, error) {
	r := &JSONRepository{
		path: path,
		data: jsonData{Users: make(map[string]jsonUser)},
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var data jsonData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Warn("data file is malformed, starting empty", zap.String("path", path), zap.Error(err))
		return r, nil
	}
	if data.Users != nil {
		r.data.Users = data.Users
	}
	r.data.PMs = data.PMs
	return r, nil
}

func (r *JSONRepository) CreateUser(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data.Users[user.Username]; exists {
		return domain.ErrAlreadyExists
	}
	r.data.Users[user.Username] = jsonUser{Password: user.PasswordDigest}
	if err := r.save(); err != nil {
		delete(r.data.Users, user.Username)
		return err
	}
	return nil
}

func (r *JSONRepository) GetUser(_ context.Context, username string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.data.Users[username]
	if !exists {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.NewUser(username, u.Password), nil
}

func (r *JSONRepository) CreatePrivateMessage(_ context.Context, message domain.PrivateMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data.PMs = append(r.data.PMs, newPMRecord(message))
	if err := r.save(); err != nil {
		r.data.PMs = r.data.PMs[:len(r.data.PMs)-1]
		return err
	}
	return nil
}

func (r *JSONRepository) ListPrivateMessages(_ context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := []domain.PrivateMessage{}
	for _, rec := range r.data.PMs {
		m := rec.toDomain()
		if m.Between(userA, userB) {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// save writes a temp file, syncs it and renames it over the data file so a
// crash leaves either the old or the new document.
func (r *JSONRepository) save() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}
