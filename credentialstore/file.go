package credentialstore

import (
	"context"
	"fmt"
	"os"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/peterbourgon/diskv/v3"
)

const (
	filePerm = 0o600
	pathPerm = 0o700
)

// FileStore keeps the bundle in a single owner-only file under a base directory.
type FileStore struct {
	dv  *diskv.Diskv
	key string
}

// NewFileStore creates the base directory if needed and returns a store for namespace/key.
func NewFileStore(dir, namespace, key string) (*FileStore, error) {
	if err := os.MkdirAll(dir, pathPerm); err != nil {
		return nil, fmt.Errorf("creating credential directory %s: %w", dir, err)
	}

	// Simplest transform function: put all the data files into the base dir.
	flatTransform := func(s string) []string { return []string{} }

	dv := diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    flatTransform,
		CacheSizeMax: 0,
		FilePerm:     filePerm,
		PathPerm:     pathPerm,
	})

	return &FileStore{dv: dv, key: namespace + "." + key + ".json"}, nil
}

func (s *FileStore) Save(_ context.Context, bundle credentials.Bundle) error {
	payload, err := credentials.Encode(bundle)
	if err != nil {
		return err
	}
	return s.dv.Write(s.key, payload)
}

func (s *FileStore) Load(_ context.Context) (*credentials.Bundle, error) {
	if !s.dv.Has(s.key) {
		return nil, nil
	}

	payload, err := s.dv.Read(s.key)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}

	bundle, err := credentials.Decode(payload)
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *FileStore) Delete(_ context.Context) error {
	if !s.dv.Has(s.key) {
		return nil
	}
	return s.dv.Erase(s.key)
}
