package providers

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Bundled preset names.
const (
	PresetBrightData = "brightdata"
	PresetOxylabs    = "oxylabs"
	PresetSmartproxy = "smartproxy"
	PresetIPRoyal    = "iproyal"
	PresetPlain      = "plain"
)

//go:embed presets/*.jsonc
var presetFiles embed.FS

var (
	presetsOnce sync.Once
	presets     map[string]*Template
	presetsErr  error
)

func loadPresets() {
	entries, err := presetFiles.ReadDir("presets")
	if err != nil {
		presetsErr = fmt.Errorf("reading embedded presets: %w", err)
		return
	}

	presets = make(map[string]*Template, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".jsonc" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".jsonc")
		data, err := presetFiles.ReadFile("presets/" + entry.Name())
		if err != nil {
			presetsErr = fmt.Errorf("reading embedded preset %s: %w", name, err)
			return
		}
		t, err := ParseTemplate(data)
		if err != nil {
			presetsErr = fmt.Errorf("parsing embedded preset %s: %w", name, err)
			return
		}
		presets[name] = t
	}
}

// Preset returns the bundled template with the given name.
func Preset(name string) (*Template, error) {
	presetsOnce.Do(loadPresets)
	if presetsErr != nil {
		return nil, presetsErr
	}
	t, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, NewConfigError("", "url_template_preset",
			fmt.Sprintf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", ")))
	}
	return t, nil
}

// PresetNames lists the bundled presets in alphabetical order.
func PresetNames() []string {
	presetsOnce.Do(loadPresets)
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetSource returns the raw JSONC text of a bundled preset, for
// operators who want to copy and customize it.
func PresetSource(name string) ([]byte, error) {
	data, err := presetFiles.ReadFile("presets/" + strings.ToLower(name) + ".jsonc")
	if err != nil {
		return nil, NewConfigError("", "url_template_preset", fmt.Sprintf("unknown preset %q", name))
	}
	return data, nil
}
