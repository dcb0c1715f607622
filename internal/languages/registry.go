package languages

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

type Registry struct {
	mu        sync.RWMutex
	languages map[ID]Language
	aliases   map[string]ID
}

func NewRegistry() *Registry {
	r := &Registry{
		languages: make(map[ID]Language),
		aliases:   make(map[string]ID),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(lang Language) error {
	if err := lang.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[lang.ID] = lang
	r.aliases[string(lang.ID)] = lang.ID
	for _, a := range lang.Aliases {
		r.aliases[strings.ToLower(a)] = lang.ID
	}
	return nil
}

// Resolve maps a language identifier or alias to its definition.
// It has no side effects.
func (r *Registry) Resolve(id string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.aliases[key]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	return r.languages[canonical], nil
}

func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

type fileConfig struct {
	Languages map[string]*Language `yaml:"Languages"`
}

// LoadFile overlays language definitions from a YAML file on top of the registry.
// Fields left out of an entry for an already known language keep their current value.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read languages file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse languages file %s: %w", path, err)
	}

	for name, l := range cfg.Languages {
		if l == nil {
			continue
		}
		id := ID(strings.ToLower(name))
		merged := *l
		if existing, err := r.Resolve(string(id)); err == nil && existing.ID == id {
			merged = mergeLanguage(existing, *l)
		}
		merged.ID = id
		if err := r.Register(merged); err != nil {
			return fmt.Errorf("languages file %s: %w", path, err)
		}
	}
	return nil
}

func mergeLanguage(base, override Language) Language {
	if override.Name != "" {
		base.Name = override.Name
	}
	if len(override.Aliases) > 0 {
		base.Aliases = override.Aliases
	}
	if override.Config.Image != "" {
		base.Config.Image = override.Config.Image
	}
	if override.Config.Extension != "" {
		base.Config.Extension = override.Config.Extension
	}
	if override.Config.ArtifactSuffix != "" {
		base.Config.ArtifactSuffix = override.Config.ArtifactSuffix
	}
	if override.Config.CompileCommand != nil {
		base.Config.CompileCommand = override.Config.CompileCommand
	}
	if len(override.Config.RunCommand) > 0 {
		base.Config.RunCommand = override.Config.RunCommand
	}
	return base
}

func (r *Registry) registerDefaults() {
	defaults := []Language{
		{
			ID:   C,
			Name: "C",
			Config: RuntimeConfig{
				Image:          "gcc:13",
				Extension:      "c",
				CompileCommand: []string{"gcc", "{{.Source}}", "-O2", "-o", "{{.Artifact}}", "-lm"},
				RunCommand:     []string{"{{.Artifact}}"},
			},
		},
		{
			ID:      CPP,
			Name:    "C++",
			Aliases: []string{"c++"},
			Config: RuntimeConfig{
				Image:          "gcc:13",
				Extension:      "cpp",
				CompileCommand: []string{"g++", "{{.Source}}", "-O2", "-o", "{{.Artifact}}"},
				RunCommand:     []string{"{{.Artifact}}"},
			},
		},
		{
			ID:   Java,
			Name: "Java",
			Config: RuntimeConfig{
				Image:          "eclipse-temurin:21-jdk",
				Extension:      "java",
				ArtifactSuffix: ".class",
				CompileCommand: []string{"javac", "-encoding", "UTF-8", "-d", "{{.Dir}}", "{{.Source}}"},
				RunCommand:     []string{"java", "-cp", "{{.Dir}}", "{{.ClassName}}"},
			},
		},
		{
			ID:      Python,
			Name:    "Python",
			Aliases: []string{"py", "python3"},
			Config: RuntimeConfig{
				Image:      "python:3.11-slim",
				Extension:  "py",
				RunCommand: []string{"python3", "{{.Source}}"},
			},
		},
	}
	for _, l := range defaults {
		if err := r.Register(l); err != nil {
			panic(err)
		}
	}
}
