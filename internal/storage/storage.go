// Package storage keeps game media under stable key prefixes.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrInvalidKey = errors.New("invalid storage key")
	ErrNotFound   = errors.New("storage object not found")
)

type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Copy(ctx context.Context, src, dst string) error
	Exists(ctx context.Context, key string) (bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
	URL(key string) string
}

// CleanKey normalises a slash-separated key and rejects anything that is
// absolute or escapes the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// JoinKey joins a prefix and a name into a cleaned key.
func JoinKey(prefix, name string) (string, error) {
	return CleanKey(path.Join(prefix, name))
}

// HasPrefix reports whether key lives under prefix.
func HasPrefix(key, prefix string) bool {
	cleanedKey, err := CleanKey(key)
	if err != nil {
		return false
	}
	cleanedPrefix, err := CleanKey(prefix)
	if err != nil {
		return false
	}
	return strings.HasPrefix(cleanedKey, cleanedPrefix+"/")
}
