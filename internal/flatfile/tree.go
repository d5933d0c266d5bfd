// Package flatfile maintains the JSON data tree served under /data: one
// document per post, comment and petition, the index files that list them,
// and the older aggregate files kept for clients that still read those.
package flatfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/models"
)

var dirs = []string{"posts", "comments", "votes", "upvotes", "downvotes", "petitions", "signatures", "reports"}

// Tree is rooted at the data directory. One mutex serializes every write
// so index and aggregate files stay consistent with the documents.
type Tree struct {
	root string
	mu   sync.Mutex
	log  *zap.Logger
}

// Open creates the directory layout if needed.
func Open(root string) (*Tree, error) {
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", d, err)
		}
	}
	return &Tree{root: root, log: applog.Named("flatfile")}, nil
}

func (t *Tree) Root() string { return t.root }

// checkID rejects ids that could escape their directory.
func checkID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return models.NewValidationError(fmt.Sprintf("invalid %s id %q", kind, id))
	}
	return nil
}

func (t *Tree) path(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// read decodes rel into v and reports whether it existed.
func (t *Tree) read(rel string, v any) (bool, error) {
	raw, err := os.ReadFile(t.path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, models.NewStorageFault("read "+rel, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, models.NewStorageFault("decode "+rel, err)
	}
	return true, nil
}

// write replaces rel atomically.
func (t *Tree) write(rel string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewStorageFault("encode "+rel, err)
	}
	full := t.path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return models.NewStorageFault("write "+rel, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return models.NewStorageFault("write "+rel, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return models.NewStorageFault("write "+rel, err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewStorageFault("write "+rel, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return models.NewStorageFault("write "+rel, err)
	}
	return nil
}

// addToIndex appends file to the index at rel unless it is listed already.
func (t *Tree) addToIndex(rel, file string) error {
	var idx models.IndexFile
	if _, err := t.read(rel, &idx); err != nil {
		return err
	}
	for _, f := range idx.Files {
		if f == file {
			return nil
		}
	}
	idx.Files = append(idx.Files, file)
	return t.write(rel, idx)
}

// legacy runs a best-effort update of an aggregate file. Failures are
// logged: the per-item documents are authoritative.
func (t *Tree) legacy(rel string, err error) {
	if err != nil {
		t.log.Warn("failed to update legacy file", zap.String("file", rel), zap.Error(err))
	}
}
