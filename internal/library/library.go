// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jeranaias/nanochat/internal/gguf"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
)

// ErrAlreadyImported is returned when the destination file is already
// registered.
var ErrAlreadyImported = errors.New("model already imported")

// progressInterval bounds how often Import reports copy progress.
const progressInterval = 100 * time.Millisecond

// scanWorkers bounds concurrent header checks during Scan.
const scanWorkers = 4

// Store is the persistence the library needs. *storage.Store satisfies it.
type Store interface {
	InsertModel(ctx context.Context, m *model.Model) error
	GetModel(ctx context.Context, id string) (*model.Model, error)
	GetModelByPath(ctx context.Context, path string) (*model.Model, error)
	ListModels(ctx context.Context, activeOnly bool) ([]model.Model, error)
	SetModelActive(ctx context.Context, id string, active bool) error
	DeleteModel(ctx context.Context, id string) error
	UpsertModelConfig(ctx context.Context, cfg *model.ModelConfig) error
	GetModelConfig(ctx context.Context, modelID string) (*model.ModelConfig, error)
}

// Engine is the part of *inference.Service the library drives.
type Engine interface {
	LoadModel(ctx context.Context, path string, opts inference.LoadOptions) error
	Unload(ctx context.Context) error
	ModelPath() string
}

// Selection persists which model is selected. *settings.Store satisfies it.
type Selection interface {
	SelectedModelID() string
	SetSelectedModelID(id string) error
	ContextLength() int
}

// Manager imports, lists, loads and removes model files.
type Manager struct {
	store    Store
	engine   Engine
	settings Selection
	dir      string
	log      logrus.FieldLogger

	// threads and GPU layers written into the config of new models
	loadDefaults model.LoadingParams
}

// New creates a Manager that keeps imported files in dir.
func New(store Store, engine Engine, sel Selection, dir string, log logrus.FieldLogger) *Manager {
	return &Manager{
		store:        store,
		engine:       engine,
		settings:     sel,
		dir:          dir,
		log:          log,
		loadDefaults: model.DefaultLoadingParams(),
	}
}

// SetLoadDefaults sets the threads and GPU layers recorded for models
// registered from now on. threads <= 0 keeps the current value.
func (m *Manager) SetLoadDefaults(threads, gpuLayers int) {
	if threads > 0 {
		m.loadDefaults.Threads = threads
	}
	m.loadDefaults.GPULayers = gpuLayers
}

// Dir returns the directory imported models are copied into.
func (m *Manager) Dir() string {
	return m.dir
}

// Import validates src, copies it into the models directory and registers
// it with a default config. progress, if non-nil, receives values in [0,1]
// at most every 100ms, and always 1 on success.
func (m *Manager) Import(ctx context.Context, src string, progress func(float64)) (*model.Model, error) {
	info, err := gguf.Validate(src)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", filepath.Base(src), err)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create models directory: %w", err)
	}
	dest := filepath.Join(m.dir, filepath.Base(src))

	if _, err := m.store.GetModelByPath(ctx, dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyImported, filepath.Base(dest))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	log := m.log.WithFields(logrus.Fields{"src": src, "dest": dest, "size": gguf.FormatSize(info.Size)})
	if !samePath(src, dest) {
		if err := copyFile(ctx, src, dest, info.Size, progress); err != nil {
			return nil, err
		}
	}
	if progress != nil {
		progress(1)
	}

	entry, err := m.register(ctx, dest, info.Size)
	if err != nil {
		return nil, err
	}
	log.WithField("model_id", entry.ID).Info("model imported")
	return entry, nil
}

// register inserts a model row and its default config.
func (m *Manager) register(ctx context.Context, path string, size int64) (*model.Model, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entry := model.NewModel(name, path, size)
	if err := m.store.InsertModel(ctx, entry); err != nil {
		return nil, err
	}

	cfg, err := model.NewDefaultModelConfig(entry.ID)
	if err == nil && m.loadDefaults != model.DefaultLoadingParams() {
		var raw []byte
		if raw, err = json.Marshal(m.loadDefaults); err == nil {
			cfg.LoadingParams = string(raw)
		}
	}
	if err == nil {
		err = m.store.UpsertModelConfig(ctx, cfg)
	}
	if err != nil {
		if derr := m.store.DeleteModel(context.WithoutCancel(ctx), entry.ID); derr != nil {
			m.log.WithError(derr).Warn("failed to roll back model registration")
		}
		return nil, fmt.Errorf("store model config: %w", err)
	}
	return entry, nil
}

// Scan registers .gguf files already present in the models directory.
// Files that fail the header check are skipped and logged. It returns the
// newly registered models.
func (m *Manager) Scan(ctx context.Context) ([]model.Model, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && gguf.IsGGUFName(e.Name()) {
			paths = append(paths, filepath.Join(m.dir, e.Name()))
		}
	}

	infos := make([]*gguf.Info, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := gguf.Validate(p)
			if err != nil {
				m.log.WithError(err).WithField("path", p).Warn("skipping invalid model file")
				return nil
			}
			infos[i] = &info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var added []model.Model
	for i, info := range infos {
		if info == nil {
			continue
		}
		if _, err := m.store.GetModelByPath(ctx, paths[i]); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return added, err
		}
		entry, err := m.register(ctx, paths[i], info.Size)
		if err != nil {
			return added, err
		}
		added = append(added, *entry)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Name < added[j].Name })
	if len(added) > 0 {
		m.log.WithField("count", len(added)).Info("registered models found on disk")
	}
	return added, nil
}

// List returns registered models by name.
func (m *Manager) List(ctx context.Context, activeOnly bool) ([]model.Model, error) {
	return m.store.ListModels(ctx, activeOnly)
}

// Get returns one model.
func (m *Manager) Get(ctx context.Context, id string) (*model.Model, error) {
	return m.store.GetModel(ctx, id)
}

// Find resolves a model by ID, exact name or file path.
func (m *Manager) Find(ctx context.Context, ref string) (*model.Model, error) {
	if entry, err := m.store.GetModel(ctx, ref); err == nil {
		return entry, nil
	}
	if entry, err := m.store.GetModelByPath(ctx, ref); err == nil {
		return entry, nil
	}
	models, err := m.store.ListModels(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if strings.EqualFold(models[i].Name, ref) {
			return &models[i], nil
		}
	}
	return nil, fmt.Errorf("model %s: %w", ref, storage.ErrNotFound)
}

// Select records id as the selected model.
func (m *Manager) Select(ctx context.Context, id string) error {
	if _, err := m.store.GetModel(ctx, id); err != nil {
		return err
	}
	return m.settings.SetSelectedModelID(id)
}

// Selected returns the selected model, or nil when none is selected or the
// selection points at a deleted model.
func (m *Manager) Selected(ctx context.Context) (*model.Model, error) {
	id := m.settings.SelectedModelID()
	if id == "" {
		return nil, nil
	}
	entry, err := m.store.GetModel(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// LoadOptions resolves how a model is loaded: context length from settings,
// threads and GPU layers from the model's config.
func (m *Manager) LoadOptions(ctx context.Context, id string) (inference.LoadOptions, error) {
	opts := inference.DefaultLoadOptions()
	cfg, err := m.store.GetModelConfig(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return opts, err
	}
	lp, err := cfg.Loading()
	if err != nil {
		m.log.WithError(err).WithField("model_id", id).Warn("bad loading params, using defaults")
	}
	opts.Threads = lp.Threads
	opts.GPULayers = lp.GPULayers
	opts.ContextLength = lp.ContextLength
	if n := m.settings.ContextLength(); n > 0 {
		opts.ContextLength = n
	}
	return opts, nil
}

// Load loads a model into the engine and selects it.
func (m *Manager) Load(ctx context.Context, id string) (*model.Model, error) {
	entry, err := m.store.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	opts, err := m.LoadOptions(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.engine.LoadModel(ctx, entry.Path, opts); err != nil {
		return nil, err
	}
	if err := m.settings.SetSelectedModelID(entry.ID); err != nil {
		m.log.WithError(err).Warn("failed to persist model selection")
	}
	return entry, nil
}

// Unload releases whatever model the engine holds.
func (m *Manager) Unload(ctx context.Context) error {
	return m.engine.Unload(ctx)
}

// Delete removes a model: unloads it if loaded, deletes the file when it
// lives in the models directory, removes the row and clears the selection.
func (m *Manager) Delete(ctx context.Context, id string) error {
	entry, err := m.store.GetModel(ctx, id)
	if err != nil {
		return err
	}

	if m.engine.ModelPath() == entry.Path {
		if err := m.engine.Unload(ctx); err != nil {
			return err
		}
	}

	if m.owns(entry.Path) {
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove model file: %w", err)
		}
	}

	if err := m.store.DeleteModel(ctx, id); err != nil {
		return err
	}
	if m.settings.SelectedModelID() == id {
		if err := m.settings.SetSelectedModelID(""); err != nil {
			m.log.WithError(err).Warn("failed to clear model selection")
		}
	}
	m.log.WithFields(logrus.Fields{"model_id": id, "name": entry.Name}).Info("model deleted")
	return nil
}

// SetActive shows or hides a model in the active list.
func (m *Manager) SetActive(ctx context.Context, id string, active bool) error {
	return m.store.SetModelActive(ctx, id, active)
}

// owns reports whether path is inside the models directory.
func (m *Manager) owns(path string) bool {
	dir, err := filepath.Abs(m.dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// copyFile copies src to dest through a temp file, reporting progress.
func copyFile(ctx context.Context, src, dest string, size int64, progress func(float64)) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	w := &progressWriter{
		ctx:     ctx,
		w:       out,
		total:   size,
		report:  progress,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}
	_, err = io.Copy(w, in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dest)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy model file: %w", err)
	}
	return nil
}

// progressWriter counts bytes and reports the fraction written, rate
// limited. It fails the copy once ctx is done.
type progressWriter struct {
	ctx     context.Context
	w       io.Writer
	written int64
	total   int64
	report  func(float64)
	limiter *rate.Limiter
}

func (p *progressWriter) Write(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.report != nil && p.total > 0 && p.limiter.Allow() {
		p.report(float64(p.written) / float64(p.total))
	}
	return n, err
}
