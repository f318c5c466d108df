package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/letsplay/gateway/internal/observability"
)

var structuredExtensions = []string{".yaml", ".yml", ".json"}

// FileProvider reads secrets below a base directory. A secret may be
//
//   - a plain file, stored under DefaultKey with surrounding whitespace trimmed
//   - a .yaml, .yml or .json file holding a flat map of keys
//   - a directory whose regular files are the keys (Kubernetes secret mounts)
type FileProvider struct {
	baseDir string
	logger  observability.Logger
}

// NewFileProvider creates a FileProvider rooted at baseDir.
func NewFileProvider(baseDir string, logger observability.Logger) (*FileProvider, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", ErrProviderNotConfigured)
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotConfigured, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrProviderNotConfigured, baseDir)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &FileProvider{baseDir: baseDir, logger: logger}, nil
}

// Type returns ProviderTypeFile.
func (p *FileProvider) Type() ProviderType {
	return ProviderTypeFile
}

// resolve maps path to a location inside the base directory.
func (p *FileProvider) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" || filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the base directory", ErrInvalidPath, path)
	}

	full := filepath.Join(p.baseDir, cleaned)
	if _, err := os.Stat(full); err == nil {
		return full, nil
	}
	for _, ext := range structuredExtensions {
		if _, err := os.Stat(full + ext); err == nil {
			return full + ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
}

// GetSecret reads the secret at path.
func (p *FileProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	return p.read(path, full)
}

func (p *FileProvider) read(name, full string) (*Secret, error) {
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return nil, err
	}

	var data map[string][]byte
	if info.IsDir() {
		data, err = readDir(full)
	} else {
		data, err = readFile(full)
	}
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", name, err)
	}

	return &Secret{Name: name, Data: data, Version: digest(data)}, nil
}

func readFile(full string) (map[string][]byte, error) {
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(full))
	for _, structured := range structuredExtensions {
		if ext != structured {
			continue
		}
		// YAML is a superset of JSON, so one decoder covers both.
		var fields map[string]any
		if err := yaml.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		data := make(map[string][]byte, len(fields))
		for k, v := range fields {
			data[k] = []byte(fmt.Sprint(v))
		}
		return data, nil
	}

	return map[string][]byte{DefaultKey: []byte(strings.TrimSpace(string(raw)))}, nil
}

func readDir(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	data := make(map[string][]byte, len(entries))
	for _, e := range entries {
		// Kubernetes mounts keep their payload in hidden ..data directories.
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		data[e.Name()] = []byte(strings.TrimSpace(string(raw)))
	}
	return data, nil
}

// digest is a content hash used as the version of file-backed secrets.
func digest(data map[string][]byte) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(data[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Watch reloads the secret whenever its file or directory changes and calls
// onChange when the content differs from the last version seen. The parent
// directory is watched so editors that replace files atomically are handled.
func (p *FileProvider) Watch(ctx context.Context, path string, onChange func(*Secret)) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	current, err := p.read(path, full)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	dirs := []string{filepath.Dir(full)}
	if info, statErr := os.Stat(full); statErr == nil && info.IsDir() {
		dirs = append(dirs, full)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	p.logger.Info("watching secret", observability.String("path", path), observability.String("file", full))

	go func() {
		defer watcher.Close()
		version := current.Version

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevant(event, full) {
					continue
				}
				s, err := p.read(path, full)
				if err != nil {
					p.logger.Warn("secret reload failed",
						observability.String("path", path),
						observability.Error(err),
					)
					continue
				}
				if s.Version == version {
					continue
				}
				version = s.Version
				p.logger.Info("secret changed",
					observability.String("path", path),
					observability.String("version", version),
				)
				onChange(s)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("secret watcher error", observability.Error(err))
			}
		}
	}()

	return nil
}

func relevant(event fsnotify.Event, full string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == full || filepath.Dir(name) == full || strings.Contains(name, "..data")
}

// Close is a no-op; watchers stop with their context.
func (p *FileProvider) Close() error {
	return nil
}
