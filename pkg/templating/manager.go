package templating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/CTAG07/mimic/pkg/markov"
)

const (
	templateExt = ".tmpl"
	partialExt  = ".part"
)

// ErrTemplateNotFound is returned by Execute for a name that was not loaded.
var ErrTemplateNotFound = errors.New("template not found")

// ModelSource supplies models by name. *markov.Store satisfies it, as does
// any caching layer in front of one.
type ModelSource interface {
	LoadModel(ctx context.Context, name string) (*markov.Model, error)
}

// modelGenerators holds the compiled generators for one model, keyed by word
// limit. They are rebuilt when the source hands back a different model.
type modelGenerators struct {
	model   *markov.Model
	byWords map[int]*markov.Generator
}

// TemplateManager loads, parses and executes templates. It owns the function
// map and the generators the model functions draw from.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger         *slog.Logger
	config         *TemplateConfig
	source         ModelSource
	templates      *template.Template
	cleanTemplates *template.Template
	templateNames  []string
	funcMap        template.FuncMap
	templateDir    string
	mu             sync.RWMutex

	genMu      sync.Mutex
	generators map[string]*modelGenerators
}

// NewTemplateManager creates a TemplateManager reading templates from
// templateDir. An empty templateDir gives a manager that can only execute
// template strings. It performs an initial Refresh.
func NewTemplateManager(logger *slog.Logger, source ModelSource, config *TemplateConfig, templateDir string) (*TemplateManager, error) {
	if source == nil {
		return nil, errors.New("templating: nil model source")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	tm := &TemplateManager{
		logger:      logger,
		source:      source,
		config:      config,
		templateDir: templateDir,
		generators:  make(map[string]*modelGenerators),
	}
	tm.funcMap = tm.makeFuncMap()

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Debug("Template manager initialized", "dir", templateDir)
	return tm, nil
}

func (tm *TemplateManager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Model content (from funcs_content.go)
		"sentence":   tm.sentence,
		"sentences":  tm.sentences,
		"paragraph":  tm.paragraph,
		"paragraphs": tm.paragraphs,

		// Control and helpers (from funcs_simple.go)
		"repeat":       tm.repeat,
		"list":         list,
		"join":         strings.Join,
		"randomChoice": randomChoice,
		"randomInt":    randomInt,
		"add":          add,
		"sub":          sub,
		"div":          div,
		"mult":         mult,
		"mod":          mod,
		"max":          maxInt,
		"min":          minInt,
		"inc":          inc,
		"dec":          dec,
		"isSet":        isSet,
	}
}

// SetConfig replaces the safety limits.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// Refresh reparses every template and partial in the template directory and
// drops all cached generators, so the next render sees the current models.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	set := template.New("").Funcs(tm.funcMap)
	var names []string

	if tm.templateDir != "" {
		for _, ext := range []string{templateExt, partialExt} {
			files, err := filepath.Glob(filepath.Join(tm.templateDir, "*"+ext))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				continue
			}
			if _, err = set.ParseFiles(files...); err != nil {
				tm.logger.Error("failed to parse template files", "ext", ext, "error", err)
				return err
			}
			if ext == templateExt {
				for _, f := range files {
					names = append(names, filepath.Base(f))
				}
			}
		}
		if len(names) == 0 {
			tm.logger.Warn("No template files found", "dir", tm.templateDir)
		}
	}
	sort.Strings(names)

	clean, err := set.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone templates: %w", err)
	}

	tm.templates = set
	tm.cleanTemplates = clean
	tm.templateNames = names

	tm.genMu.Lock()
	tm.generators = make(map[string]*modelGenerators)
	tm.genMu.Unlock()

	tm.logger.Info("Loaded templates", "count", len(names))
	return nil
}

// Execute renders the named template to w.
func (tm *TemplateManager) Execute(w io.Writer, name string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !strings.HasSuffix(name, templateExt) || tm.templates.Lookup(name) == nil {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return tm.templates.ExecuteTemplate(w, name, data)
}

// ExecuteTemplateString parses content with the manager's functions and
// partials and renders it to w. Nothing is added to the loaded set.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tempSet, err := tm.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone templates for string execution: %w", err)
	}
	t, err := tempSet.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}
	return t.Execute(w, data)
}

// ExecuteFile renders a template file from any filesystem, with the loaded
// partials available to it.
func (tm *TemplateManager) ExecuteFile(w io.Writer, fsys fs.FS, path string, data any) error {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	return tm.ExecuteTemplateString(w, string(content), data)
}

// GetTemplateNames returns the names of the executable templates, sorted.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.templateNames...)
}

// GetTemplateDir returns the directory templates are loaded from.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// generator returns a generator for the named model with the given word
// limit, compiling one on first use.
func (tm *TemplateManager) generator(ctx context.Context, name string, maxWords int) (*markov.Generator, error) {
	model, err := tm.source.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}

	tm.genMu.Lock()
	defer tm.genMu.Unlock()

	entry, ok := tm.generators[name]
	if !ok || entry.model != model {
		entry = &modelGenerators{model: model, byWords: make(map[int]*markov.Generator)}
		tm.generators[name] = entry
	}
	if g, ok := entry.byWords[maxWords]; ok {
		return g, nil
	}

	g, err := markov.NewGenerator(model, markov.WithMaxWords(maxWords))
	if err != nil {
		return nil, err
	}
	g.SetLogger(tm.logger)
	entry.byWords[maxWords] = g
	return g, nil
}
