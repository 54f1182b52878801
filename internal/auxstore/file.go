package auxstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"classcal/internal/config"
	appLog "classcal/internal/log"
	"classcal/internal/model"
)

// File stores every record in a single JSON object on disk, keyed by
// session id. Writes go through a temp file and rename. The mutex makes
// each read-modify-write atomic within the process.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File store at path. The file is created lazily.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) All(_ context.Context) (map[string]model.AuxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	return data, wrap("aux all", err)
}

func (f *File) Get(_ context.Context, id string) (model.AuxRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return model.AuxRecord{}, false, wrap("aux get", err)
	}
	rec, ok := data[id]
	return rec, ok, nil
}

func (f *File) Put(_ context.Context, id string, rec model.AuxRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return wrap("aux put", err)
	}
	data[id] = rec
	return wrap("aux put", f.save(data))
}

func (f *File) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return wrap("aux delete", err)
	}
	if _, ok := data[id]; !ok {
		return nil
	}
	delete(data, id)
	return wrap("aux delete", f.save(data))
}

// load reads the whole file. A missing or empty file is an empty map.
func (f *File) load() (map[string]model.AuxRecord, error) {
	out := make(map[string]model.AuxRecord)
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		appLog.Error("aux store file is corrupt", err, "path", f.path)
		return nil, err
	}
	return out, nil
}

func (f *File) save(data map[string]model.AuxRecord) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(f.path, raw, 0o600)
}
