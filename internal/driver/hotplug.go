package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"

	"github.com/tephra-os/tephra/internal/ksync"
)

// Manifest describes one hot-pluggable driver. Manifests are YAML files
// dropped into the manifest directory:
//
//	driver: uart16550
//	name: serial1
//	version: "1.2.0"
//	kernel: ">=1.0.0 <2.0.0"
//	capabilities: [serial]
type Manifest struct {
	Driver       string   `yaml:"driver"`
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Kernel       string   `yaml:"kernel"`
	Capabilities []string `yaml:"capabilities"`
}

// ParseManifest unmarshals and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.Driver == "" {
		return nil, fmt.Errorf("manifest: missing driver kind")
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest: missing driver name")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, fmt.Errorf("manifest %q: bad version %q: %w", m.Name, m.Version, err)
	}
	if len(m.Capabilities) == 0 {
		return nil, fmt.Errorf("manifest %q: no capabilities", m.Name)
	}
	return &m, nil
}

// SemVersion returns the parsed driver version. Parse must have succeeded
// in ParseManifest.
func (m *Manifest) SemVersion() *semver.Version {
	return semver.MustParse(m.Version)
}

// Compatible reports whether the manifest's kernel constraint admits the
// given kernel ABI version. An empty constraint admits everything.
func (m *Manifest) Compatible(abi *semver.Version) (bool, error) {
	if m.Kernel == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(m.Kernel)
	if err != nil {
		return false, fmt.Errorf("manifest %q: bad kernel constraint %q: %w", m.Name, m.Kernel, err)
	}
	return c.Check(abi), nil
}

// Factory builds a driver object for a compatible manifest.
type Factory func(m *Manifest) (Driver, error)

// Hotplug registers drivers described by manifest files, either by scanning
// a directory once at boot or by watching it for later additions.
type Hotplug struct {
	reg       *Registry
	abi       *semver.Version
	log       io.Writer
	factories map[string]Factory

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHotplug creates a hot-plug loader registering into reg, checking
// manifest constraints against the kernel ABI version. Diagnostics are
// written to log.
func NewHotplug(reg *Registry, abi *semver.Version, log io.Writer) *Hotplug {
	return &Hotplug{
		reg:       reg,
		abi:       abi,
		log:       log,
		factories: make(map[string]Factory),
	}
}

// RegisterFactory installs the constructor for one driver kind. Driver
// packages call this before any manifest naming that kind is loaded.
func (h *Hotplug) RegisterFactory(kind string, fn Factory) {
	h.factories[kind] = fn
}

// LoadDir applies every manifest in dir, in name order. Individual
// manifest failures are logged and skipped so one bad file cannot keep the
// rest of the hardware from coming up.
func (h *Hotplug) LoadDir(xc *ksync.ExecContext, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("hotplug: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isManifestName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.apply(xc, filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(h.log, "hotplug: %s: %v\n", name, err)
		}
	}
	return nil
}

// Watch starts watching dir and registers drivers from manifests created or
// rewritten there. The watch loop runs until Close.
func (h *Hotplug) Watch(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hotplug: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("hotplug: %w", err)
	}

	h.watcher = w
	h.done = make(chan struct{})
	go h.loop()
	return nil
}

func (h *Hotplug) loop() {
	// The watch loop is its own flow of control and gets its own lock
	// context.
	xc := ksync.NewExecContext("hotplug")
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isManifestName(ev.Name) {
				continue
			}
			if err := h.apply(xc, ev.Name); err != nil {
				fmt.Fprintf(h.log, "hotplug: %s: %v\n", filepath.Base(ev.Name), err)
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(h.log, "hotplug: watch: %v\n", err)
		case <-h.done:
			return
		}
	}
}

// Close stops the watch loop, if any.
func (h *Hotplug) Close() error {
	if h.watcher == nil {
		return nil
	}
	close(h.done)
	return h.watcher.Close()
}

func (h *Hotplug) apply(xc *ksync.ExecContext, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return err
	}

	ok, err := m.Compatible(h.abi)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("kernel %s does not satisfy constraint %q", h.abi, m.Kernel)
	}

	factory, ok := h.factories[m.Driver]
	if !ok {
		return fmt.Errorf("no factory for driver kind %q", m.Driver)
	}
	drv, err := factory(m)
	if err != nil {
		return err
	}
	if err := drv.DriverInit(h.log); err != nil {
		return err
	}

	caps := make([]Capability, len(m.Capabilities))
	for i, c := range m.Capabilities {
		caps[i] = Capability(c)
	}
	if err := h.reg.Register(xc, drv, caps...); err != nil {
		return err
	}
	fmt.Fprintf(h.log, "hotplug: registered %s %s (%s)\n", m.Name, m.Version, strings.Join(m.Capabilities, ", "))
	return nil
}

func isManifestName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
