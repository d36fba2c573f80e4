// Package sources manages the prioritized list of package mirrors,
// persisted to the line-oriented /etc/rpg/sources.list text file.
package sources

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

const DefaultPath = "/etc/rpg/sources.list"

// Kind is the package class a source serves.
type Kind string

const (
	KindKernel Kind = "kernel"
	KindSystem Kind = "system"
	KindApps   Kind = "apps"
)

func validKind(k Kind) bool {
	switch k {
	case KindKernel, KindSystem, KindApps:
		return true
	}
	return false
}

// Source is a single mirror entry.
type Source struct {
	Name     string
	URL      string
	Kind     Kind
	Enabled  bool
	Priority uint32
}

// New creates an enabled source with the default priority (100).
func New(name, url string, kind Kind) Source {
	return Source{Name: name, URL: url, Kind: kind, Enabled: true, Priority: 100}
}

// WithPriority creates an enabled source with an explicit priority.
func WithPriority(name, url string, kind Kind, priority uint32) Source {
	return Source{Name: name, URL: url, Kind: kind, Enabled: true, Priority: priority}
}

// IndexURL is the derived repository index URL for this source.
func (s Source) IndexURL() string {
	return strings.TrimRight(s.URL, "/") + "/index.json"
}

// PackageURL is the derived package archive URL for a given package and
// version.
func (s Source) PackageURL(name, version string) string {
	return fmt.Sprintf("%s/%s/%s.rpg", strings.TrimRight(s.URL, "/"), name, version)
}

// Validate checks that the source has a non-empty http(s) URL and a
// recognized kind.
func (s Source) Validate() error {
	if s.URL == "" {
		return rpgerrors.New(rpgerrors.Other, "source %q has empty URL", s.Name)
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return rpgerrors.New(rpgerrors.Other, "source %q has invalid URL: %s", s.Name, s.URL)
	}
	if !validKind(s.Kind) {
		return rpgerrors.New(rpgerrors.Other, "source %q has invalid kind: %s", s.Name, s.Kind)
	}
	return nil
}

// defaultSources mirrors the reference implementation's built-in mirror
// list, used when no sources.list file exists yet.
func defaultSources() []Source {
	return []Source{
		New("kernel", "http://rustux.com/kernel", KindKernel),
		New("system", "http://rustux.com/rustica", KindSystem),
		New("apps", "http://rustux.com/apps", KindApps),
	}
}

// List is an ordered collection of sources, the in-memory form of
// sources.list.
type List struct {
	Sources []Source
}

// Load reads the sources list from the default path, falling back to the
// built-in defaults if the file does not exist.
func Load() (*List, error) {
	return LoadFrom(DefaultPath)
}

// LoadFrom reads a sources list from an explicit path.
func LoadFrom(path string) (*List, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &List{Sources: defaultSources()}, nil
	}
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading sources list %s", path)
	}
	defer f.Close()

	var result List
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		enabled := true
		data := line
		if strings.HasPrefix(data, "#") {
			candidate := strings.TrimSpace(strings.TrimPrefix(data, "#"))
			src, ok := parseDataLine(candidate, false)
			if !ok {
				// A plain comment (header, blank "#", etc.), not a
				// disabled source line.
				continue
			}
			enabled = false
			result.Sources = append(result.Sources, withEnabled(src, enabled))
			continue
		}

		if src, ok := parseDataLine(data, true); ok {
			result.Sources = append(result.Sources, src)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading sources list %s", path)
	}
	return &result, nil
}

func withEnabled(s Source, enabled bool) Source {
	s.Enabled = enabled
	return s
}

// parseDataLine parses "<kind> <url> [priority]" into a Source, enabled by
// construction (callers adjust Enabled for the commented/disabled form).
func parseDataLine(line string, _ bool) (Source, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return Source{}, false
	}
	kind := Kind(parts[0])
	if !validKind(kind) {
		return Source{}, false
	}
	url := parts[1]
	priority := uint32(100)
	if len(parts) > 2 {
		if p, err := strconv.ParseUint(parts[2], 10, 32); err == nil {
			priority = uint32(p)
		}
	}
	name := fmt.Sprintf("%s-%s", kind, url)
	return Source{Name: name, URL: url, Kind: kind, Enabled: true, Priority: priority}, true
}

// Save writes the sources list to the default path.
func (l *List) Save() error {
	return l.SaveTo(DefaultPath)
}

// SaveTo writes the sources list to an explicit path. Disabled sources are
// re-emitted as "#"-prefixed data lines so that Load can recognize and
// reload them as disabled.
func (l *List) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}

	sorted := make([]Source, len(l.Sources))
	copy(sorted, l.Sources)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var b strings.Builder
	b.WriteString("# Rustica Package Sources\n")
	b.WriteString("# Format: type url [priority]\n")
	b.WriteString("# Types: kernel, system, apps\n\n")
	for _, s := range sorted {
		line := fmt.Sprintf("%s %s %d\n", s.Kind, s.URL, s.Priority)
		if !s.Enabled {
			line = "# " + line
		}
		b.WriteString(line)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing sources list %s", path)
	}
	return nil
}

// Add inserts a source, replacing any existing source of the same name.
func (l *List) Add(s Source) {
	filtered := l.Sources[:0]
	for _, existing := range l.Sources {
		if existing.Name != s.Name {
			filtered = append(filtered, existing)
		}
	}
	l.Sources = append(filtered, s)
}

// Remove deletes a source by name.
func (l *List) Remove(name string) {
	var filtered []Source
	for _, s := range l.Sources {
		if s.Name != name {
			filtered = append(filtered, s)
		}
	}
	l.Sources = filtered
}

// Enable marks a source enabled, returning false if no source matches.
func (l *List) Enable(name string) bool { return l.setEnabled(name, true) }

// Disable marks a source disabled, returning false if no source matches.
func (l *List) Disable(name string) bool { return l.setEnabled(name, false) }

func (l *List) setEnabled(name string, enabled bool) bool {
	for i := range l.Sources {
		if l.Sources[i].Name == name {
			l.Sources[i].Enabled = enabled
			return true
		}
	}
	return false
}

// ByKind returns enabled sources of a given kind, sorted ascending by
// priority (same-priority order is stable, reflecting file order).
func (l *List) ByKind(kind Kind) []Source {
	var result []Source
	for _, s := range l.Sources {
		if s.Enabled && s.Kind == kind {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Priority < result[j].Priority })
	return result
}

// Enabled returns every enabled source, sorted ascending by priority.
func (l *List) Enabled() []Source {
	var result []Source
	for _, s := range l.Sources {
		if s.Enabled {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Priority < result[j].Priority })
	return result
}

// Validate checks every source in the list.
func (l *List) Validate() error {
	for _, s := range l.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the source list.
type Stats struct {
	Total    int
	Enabled  int
	Disabled int
	Kernel   int
	System   int
	Apps     int
}

// Stats computes summary counts over the list.
func (l *List) Stats() Stats {
	var s Stats
	s.Total = len(l.Sources)
	for _, src := range l.Sources {
		if src.Enabled {
			s.Enabled++
		}
		switch src.Kind {
		case KindKernel:
			s.Kernel++
		case KindSystem:
			s.System++
		case KindApps:
			s.Apps++
		}
	}
	s.Disabled = s.Total - s.Enabled
	return s
}
