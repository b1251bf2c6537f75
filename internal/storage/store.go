package storage

import (
	"errors"
	"fmt"
)

var (
	// DefaultDir is the root directory for all persisted artifacts.
	// TODO : leaving this as a var to be able to adjust for the tests
	DefaultDir = "file-storage"
)

var (
	NotFoundErr      = errors.New("not found")
	CouldNotLoadErr  = errors.New("could not load")
	UnrecoverableErr = errors.New("unrecoverable error")
)

// Shard creates a new storage implementation for the given shard.
type Shard func(shard string) (Persistence, error)

// Key is the storage key for a cached artifact.
// The path is a pure function of the transform configuration,
// never of the contents of the input file list.
type Key struct {
	Kind      string `json:"kind"`
	Split     string `json:"split"`
	Signature string `json:"signature"`
}

func (k Key) Path() string {
	if k.Split == "" {
		return fmt.Sprintf("%s_%s", k.Kind, k.Signature)
	}
	return fmt.Sprintf("%s_%s_%s", k.Kind, k.Split, k.Signature)
}

// Persistence stores and loads values for a key.
type Persistence interface {
	Store(k Key, value interface{}) error
	Load(k Key, value interface{}) error
}

// VoidStorage ignores all writes and finds nothing.
type VoidStorage struct {
}

func NewVoidStorage() *VoidStorage {
	return &VoidStorage{}
}

func (d VoidStorage) Store(k Key, value interface{}) error {
	return nil
}

func (d VoidStorage) Load(k Key, value interface{}) error {
	return fmt.Errorf("not found '%v': %w", k, NotFoundErr)
}
