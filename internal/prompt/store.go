package prompt

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// Store is the template storage collaborator: id -> template text.
type Store interface {
	Lookup(ctx context.Context, id string) (string, error)
}

// TemplateExt is appended to template ids by the file-backed stores.
const TemplateExt = ".md"

//go:embed templates/*.md
var defaultTemplates embed.FS

// DefaultStore serves the templates shipped with the binary.
func DefaultStore() *FSStore {
	sub, _ := fs.Sub(defaultTemplates, "templates")
	return NewFSStore(sub)
}

// FSStore reads <id>.md from an fs.FS.
type FSStore struct {
	fsys fs.FS
}

func NewFSStore(fsys fs.FS) *FSStore { return &FSStore{fsys: fsys} }

func (s *FSStore) Lookup(_ context.Context, id string) (string, error) {
	if !validID(id) {
		return "", notFound(id, nil)
	}
	b, err := fs.ReadFile(s.fsys, path.Clean(id)+TemplateExt)
	if err != nil {
		return "", notFound(id, err)
	}
	return string(b), nil
}

// DirStore reads <dir>/<id>.md on every lookup so edits apply without a restart.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore { return &DirStore{dir: dir} }

func (s *DirStore) Lookup(_ context.Context, id string) (string, error) {
	if !validID(id) {
		return "", notFound(id, nil)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, id+TemplateExt))
	if err != nil {
		return "", notFound(id, err)
	}
	return string(b), nil
}

// MapStore is an in-memory store.
type MapStore struct {
	mu        sync.RWMutex
	templates map[string]string
}

func NewMapStore(templates map[string]string) *MapStore {
	m := make(map[string]string, len(templates))
	for k, v := range templates {
		m[k] = v
	}
	return &MapStore{templates: m}
}

func (s *MapStore) Set(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[id] = text
}

func (s *MapStore) Lookup(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return "", notFound(id, nil)
	}
	return t, nil
}

// ChainStore tries each store in order and returns the first hit.
type ChainStore []Store

func (c ChainStore) Lookup(ctx context.Context, id string) (string, error) {
	var last error
	for _, s := range c {
		t, err := s.Lookup(ctx, id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return "", err
		}
		last = err
	}
	if last == nil {
		last = notFound(id, nil)
	}
	return "", last
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func notFound(id string, cause error) error {
	msg := fmt.Sprintf("template %q not found", id)
	if cause != nil && !errors.Is(cause, fs.ErrNotExist) {
		msg = fmt.Sprintf("template %q: %v", id, cause)
	}
	return common.NewAppError(common.CodeTemplate, msg, common.ErrNotFound)
}
