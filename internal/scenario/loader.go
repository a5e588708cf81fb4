package scenario

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

const builtinDir = "builtin"

var (
	extensions = []string{".yaml", ".yml"}
	validName  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// document mirrors the on-disk format. Pointer fields detect absent keys.
type document struct {
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Duration    *float64                  `yaml:"duration"`
	Vitals      map[string][]ControlPoint `yaml:"vitals"`
}

// Loader locates scenario definitions in an optional directory, falling back
// to the definitions built into the binary. Nothing is cached between calls.
type Loader struct {
	dir string
}

// NewLoader returns a Loader searching dir before the built-in scenarios.
// An empty dir uses the built-in scenarios only.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load locates, parses and validates the scenario identified by name.
func (l *Loader) Load(name string) (*Scenario, error) {
	errFactory := errors.New()

	if !validName.MatchString(name) {
		return nil, errFactory.Wrap(ErrNotFound, errFactory.WithData(ErrInvalidName, name))
	}

	data, err := l.read(name)
	if err != nil {
		return nil, err
	}

	return Parse(name, data)
}

func (l *Loader) read(name string) ([]byte, error) {
	errFactory := errors.New()

	if l.dir != "" {
		for _, ext := range extensions {
			data, err := os.ReadFile(filepath.Join(l.dir, name+ext))
			if err == nil {
				return data, nil
			}
			if !os.IsNotExist(err) {
				return nil, errFactory.Wrap(errors.ErrInternal, err)
			}
		}
	}

	for _, ext := range extensions {
		data, err := builtinFS.ReadFile(builtinDir + "/" + name + ext)
		if err == nil {
			return data, nil
		}
	}

	return nil, errFactory.WithData(ErrNotFound, name)
}

// List returns the names of every loadable scenario, sorted.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]struct{})

	entries, err := fs.ReadDir(builtinFS, builtinDir)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInternal, err)
	}
	collect(entries, seen)

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.New().Wrap(errors.ErrInternal, err)
		}
		collect(entries, seen)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func collect(entries []fs.DirEntry, seen map[string]struct{}) {
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, known := range extensions {
			if ext == known {
				name := strings.TrimSuffix(e.Name(), ext)
				if validName.MatchString(name) {
					seen[name] = struct{}{}
				}
			}
		}
	}
}

// Parse decodes and validates a scenario definition. name is used when the
// document does not carry its own.
func Parse(name string, data []byte) (*Scenario, error) {
	errFactory := errors.New()

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errFactory.Wrap(ErrInvalidFormat, err)
	}

	if doc.Duration == nil {
		return nil, errFactory.WithData(ErrInvalidFormat, invalid(name, "", "duration is required"))
	}
	if doc.Vitals == nil {
		return nil, errFactory.WithData(ErrInvalidFormat, invalid(name, "", "vitals is required"))
	}

	s := &Scenario{
		Name:        doc.Name,
		Description: doc.Description,
		Duration:    *doc.Duration,
		Vitals:      make(map[Vital][]ControlPoint, len(doc.Vitals)),
	}
	if s.Name == "" {
		s.Name = name
	}

	for key, points := range doc.Vitals {
		normalized := make([]ControlPoint, len(points))
		for i, p := range points {
			if p.Kind == "" {
				p.Kind = Constant
			}
			normalized[i] = p
		}
		s.Vitals[Vital(key)] = normalized
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}
