package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config is the persisted addressing of one reader.
type Config struct {
	ID         string
	BusAddr    uint8
	PortNumber int
}

// Store persists reader configurations. Connection state is never stored.
type Store interface {
	// Load returns every stored configuration.
	Load(ctx context.Context) ([]Config, error)

	// Save replaces the stored set with cfgs.
	Save(ctx context.Context, cfgs []Config) error
}

// ErrSettings is returned when the settings file cannot be parsed.
var ErrSettings = errors.New("reader: invalid settings file")

const (
	keyBusAddr    = "bus_addr"
	keyPortNumber = "port_number"
)

// INIStore keeps configurations in an INI file with one section per reader:
//
//	[dock-1]
//	bus_addr = 1
//	port_number = 3
//
// The file is rewritten in full on every save with sections in id order.
type INIStore struct {
	path string
}

// NewINIStore returns a store backed by the file at path. A missing file
// loads as empty.
func NewINIStore(path string) *INIStore {
	return &INIStore{path: path}
}

// Path returns the settings file location.
func (s *INIStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *INIStore) Load(_ context.Context) ([]Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSettings, s.path, err)
	}

	var cfgs []Config
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		bus, err := sec.Key(keyBusAddr).Int()
		if err != nil || bus < 0 || bus > 255 {
			return nil, fmt.Errorf("%w: [%s] %s", ErrSettings, sec.Name(), keyBusAddr)
		}
		port, err := sec.Key(keyPortNumber).Int()
		if err != nil {
			return nil, fmt.Errorf("%w: [%s] %s", ErrSettings, sec.Name(), keyPortNumber)
		}

		cfgs = append(cfgs, Config{ID: sec.Name(), BusAddr: uint8(bus), PortNumber: port})
	}

	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].ID < cfgs[j].ID })
	return cfgs, nil
}

// Save implements Store. The file is written to a temporary sibling and
// renamed into place.
func (s *INIStore) Save(_ context.Context, cfgs []Config) error {
	sorted := make([]Config, len(cfgs))
	copy(sorted, cfgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	f := ini.Empty()
	for _, c := range sorted {
		sec, err := f.NewSection(c.ID)
		if err != nil {
			return fmt.Errorf("section %q: %w", c.ID, err)
		}
		if _, err := sec.NewKey(keyBusAddr, strconv.Itoa(int(c.BusAddr))); err != nil {
			return fmt.Errorf("section %q: %w", c.ID, err)
		}
		if _, err := sec.NewKey(keyPortNumber, strconv.Itoa(c.PortNumber)); err != nil {
			return fmt.Errorf("section %q: %w", c.ID, err)
		}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := f.SaveTo(tmp); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}
