package opensbp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
)

// FileStore keeps the configuration in a local JSON file.
//
// Saved documents replace opensbp.variables.ATC and TOOLS; every other key in
// the file is left as-is.
type FileStore struct {
	path string
	mx   sync.Mutex
}

var _ atc.Store = &FileStore{}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file name.
func (f *FileStore) Path() string { return f.path }

// Load reads the configuration file.
func (f *FileStore) Load(ctx context.Context) (*Config, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data))
}

// Save writes doc into the configuration file atomically.
func (f *FileStore) Save(ctx context.Context, doc atc.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mx.Lock()
	defer f.mx.Unlock()

	root := make(map[string]interface{})
	data, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	default:
		err = json.Unmarshal(data, &root)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.path, err)
		}
	}

	vars := child(child(root, "opensbp"), "variables")
	vars["ATC"] = doc.ATC
	vars["TOOLS"] = doc.Tools

	data, err = json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(f.path, bytes.NewReader(data))
}

func child(m map[string]interface{}, key string) map[string]interface{} {
	if c, ok := m[key].(map[string]interface{}); ok {
		return c
	}
	c := make(map[string]interface{})
	m[key] = c
	return c
}
