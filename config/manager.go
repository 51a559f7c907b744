package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dyike/GemScreener/internal/logger"
)

// Manager owns the on-disk config file and hands out validated snapshots.
// The file never holds credentials; those come from WithEnv at use time.
type Manager struct {
	path     string
	debounce time.Duration
	log      logrus.FieldLogger

	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
	watching bool
}

type managerOptions struct {
	configPath string
	debounce   time.Duration
}

// ManagerOption configures NewManager.
type ManagerOption func(*managerOptions)

// WithConfigDir places config.json inside dir.
func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, "config.json")
		}
	}
}

// WithConfigPath uses path as the config file.
func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// NewManager opens the config file, writing the built-in defaults when it
// does not exist yet.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.configPath == "" {
		path, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		o.configPath = path
	}
	if err := os.MkdirAll(filepath.Dir(o.configPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{path: o.configPath, debounce: o.debounce, log: logger.For("config")}
	cfg, err := m.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		if err := m.write(cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	case err != nil:
		return nil, err
	}
	m.cfg = cfg
	return m, nil
}

// Get returns the current snapshot. Its maps are shared; treat it as read-only.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string { return m.path }

// read decodes the file over the defaults rooted at its directory, so
// sections the file omits keep their built-in values.
func (m *Manager) read() (Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", m.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", m.path, err)
	}
	return cfg, nil
}

func (m *Manager) write(cfg Config) error {
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), m.path)
}

// Merge applies a full or partial JSON document over the current config,
// validates the result and persists it.
func (m *Manager) Merge(patch []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Round-trip through JSON so the patch never mutates maps shared with
	// snapshots already handed out.
	base, err := json.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("encode current config: %w", err)
	}
	var next Config
	if err := json.Unmarshal(base, &next); err != nil {
		return fmt.Errorf("copy current config: %w", err)
	}
	if err := json.Unmarshal(patch, &next); err != nil {
		return fmt.Errorf("parse config patch: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.cfg, next) {
		return nil
	}
	if err := m.write(next); err != nil {
		return err
	}
	m.cfg = next
	return nil
}

// credentialKeys may only come from the environment or .env.
var credentialKeys = map[string]bool{
	"polygon_api_key":       true,
	"longport_app_key":      true,
	"longport_app_secret":   true,
	"longport_access_token": true,
	"database_url":          true,
}

// Set assigns top-level keys from KEY=VALUE pairs, e.g. "workers=8" or
// "http_timeout=45s". Object-valued keys take a JSON document.
func (m *Manager) Set(assignments ...string) error {
	if len(assignments) == 0 {
		return errors.New("nothing to set")
	}
	fields := configFields()
	patch := make(map[string]json.RawMessage, len(assignments))
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return fmt.Errorf("expected KEY=VALUE, got %q", a)
		}
		typ, known := fields[key]
		if !known {
			return fmt.Errorf("unknown key %q (have %s)", key, strings.Join(sortedKeys(fields), ", "))
		}
		if credentialKeys[key] {
			return fmt.Errorf("%s is a credential; set it in the environment or .env", key)
		}
		raw, err := encodeValue(typ, strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		patch[key] = raw
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return m.Merge(body)
}

var durationType = reflect.TypeOf(time.Duration(0))

func configFields() map[string]reflect.Type {
	t := reflect.TypeOf(Config{})
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			fields[name] = f.Type
		}
	}
	return fields
}

func encodeValue(typ reflect.Type, value string) (json.RawMessage, error) {
	var v interface{}
	switch {
	case typ == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		v = int64(d)
	case typ.Kind() == reflect.String:
		v = value
	case typ.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		v = b
	case typ.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		v = n
	case typ.Kind() == reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		v = f
	default:
		if !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("expected a JSON %s", typ.Kind())
		}
		return json.RawMessage(value), nil
	}
	return json.Marshal(v)
}

// Watch reloads the file when something else changes it and passes every
// accepted snapshot to onChange. Invalid edits are logged and ignored.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	settle := time.NewTimer(m.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !m.concerns(evt) {
				continue
			}
			settle.Reset(m.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Warnf("config watcher error: %v", err)
		case <-settle.C:
			m.reload()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) concerns(evt fsnotify.Event) bool {
	return filepath.Clean(evt.Name) == filepath.Clean(m.path) &&
		evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// reload is also triggered by the manager's own writes; those decode to the
// current snapshot and stop at the equality check.
func (m *Manager) reload() {
	cfg, err := m.read()
	if errors.Is(err, os.ErrNotExist) {
		// Removed out from under us: keep the current snapshot on disk.
		m.mu.RLock()
		current := m.cfg
		m.mu.RUnlock()
		if err := m.write(current); err != nil {
			m.log.Errorf("config recreate failed: %v", err)
		}
		return
	}
	if err != nil {
		m.log.Errorf("config reload rejected, keeping previous: %v", err)
		return
	}

	m.mu.Lock()
	if reflect.DeepEqual(m.cfg, cfg) {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	m.log.Infof("config reloaded from %s", m.path)
	if cb != nil {
		cb(cfg)
	}
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "GemScreener", "config.json"), nil
}
