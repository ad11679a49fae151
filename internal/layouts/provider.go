// Package layouts loads speaker layouts from a directory of JSON or YAML
// files.
//
// Each file describes one layout:
//
//	name: 5.1
//	speakers:
//	  - {id: L, azimuth: -30, elevation: 0}
//	  - {id: C, x: 1, y: 0, z: 0}
//
// A speaker with numeric x, y and z is taken as-is (clamped to the unit cube).
// Otherwise azimuth|az, elevation|el and distance|dist (defaults 0, 0, 1) are
// converted to the scene frame. The layout key is the file name without its
// extension.
package layouts

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mgth/SpatialVisualizer/internal/scene"
	"github.com/mgth/SpatialVisualizer/internal/security"
)

// ErrNoLayouts is returned when the directory is missing or holds no layout
// files.
var ErrNoLayouts = errors.New("layouts: no layout files found")

// DefaultSpeakerID names speakers whose file entry has no id.
const DefaultSpeakerID = "spk"

var extensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// IsLayoutFile reports whether name has a layout file extension.
func IsLayoutFile(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Provider returns the current set of layouts.
type Provider interface {
	Load() ([]scene.Layout, error)
}

// DirProvider reads layouts from one directory. Sub-directories are ignored.
type DirProvider struct {
	Dir    string
	Logger *zap.Logger
}

// NewDirProvider returns a provider for dir.
func NewDirProvider(dir string, logger *zap.Logger) *DirProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirProvider{Dir: dir, Logger: logger}
}

// Load parses every layout file, sorted by display name. Files that fail to
// parse are logged and skipped.
func (p *DirProvider) Load() ([]scene.Layout, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoLayouts
		}
		return nil, fmt.Errorf("failed to read layouts directory %s: %w", p.Dir, err)
	}

	seen := make(map[string]string)
	var out []scene.Layout
	for _, entry := range entries {
		if entry.IsDir() || !IsLayoutFile(entry.Name()) {
			continue
		}
		path := filepath.Join(p.Dir, entry.Name())
		if err := security.ValidatePathWithinDirectory(path, p.Dir); err != nil {
			p.Logger.Warn("skipping layout file", zap.String("path", path), zap.Error(err))
			continue
		}
		layout, err := LoadFile(path)
		if err != nil {
			p.Logger.Warn("skipping layout file", zap.String("path", path), zap.Error(err))
			continue
		}
		if prev, dup := seen[layout.Key]; dup {
			p.Logger.Warn("duplicate layout key",
				zap.String("key", layout.Key),
				zap.String("kept", prev),
				zap.String("skipped", entry.Name()))
			continue
		}
		seen[layout.Key] = entry.Name()
		out = append(out, layout)
	}
	if len(out) == 0 {
		return nil, ErrNoLayouts
	}
	scene.SortLayouts(out)
	return out, nil
}

type layoutFile struct {
	Name     string           `yaml:"name"`
	Speakers []map[string]any `yaml:"speakers"`
}

// LoadFile parses one layout file.
func LoadFile(path string) (scene.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scene.Layout{}, fmt.Errorf("failed to read layout: %w", err)
	}
	base := filepath.Base(path)
	key := strings.TrimSuffix(base, filepath.Ext(base))
	return Parse(key, data)
}

// Parse decodes a layout document. JSON documents are valid YAML, so one
// decoder serves both formats.
func Parse(key string, data []byte) (scene.Layout, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return scene.Layout{}, fmt.Errorf("failed to parse layout %s: %w", key, err)
	}

	l := scene.Layout{Key: key, Name: strings.TrimSpace(f.Name), Speakers: make([]scene.Speaker, 0, len(f.Speakers))}
	if l.Name == "" {
		l.Name = key
	}
	for i, raw := range f.Speakers {
		spk, err := normalizeSpeaker(raw)
		if err != nil {
			return scene.Layout{}, fmt.Errorf("layout %s speaker %d: %w", key, i, err)
		}
		l.Speakers = append(l.Speakers, spk)
	}
	return l, nil
}

func normalizeSpeaker(raw map[string]any) (scene.Speaker, error) {
	spk := scene.Speaker{ID: DefaultSpeakerID, Spatialize: true}
	if id, ok := raw["id"]; ok && id != nil {
		if s := strings.TrimSpace(fmt.Sprint(id)); s != "" {
			spk.ID = s
		}
	}
	if v, ok := raw["spatialize"].(bool); ok {
		spk.Spatialize = v
	}

	x, xok := number(raw["x"])
	y, yok := number(raw["y"])
	z, zok := number(raw["z"])
	if xok && yok && zok {
		pos := scene.Vec3{X: x, Y: y, Z: z}.ClampUnit()
		spk.X, spk.Y, spk.Z = pos.X, pos.Y, pos.Z
		spk.Azimuth, spk.Elevation, spk.Distance = scene.CartesianToSpherical(pos)
		return spk, nil
	}

	az, err := field(raw, 0, "azimuth", "az")
	if err != nil {
		return spk, err
	}
	el, err := field(raw, 0, "elevation", "el")
	if err != nil {
		return spk, err
	}
	dist, err := field(raw, 1, "distance", "dist")
	if err != nil {
		return spk, err
	}
	pos := scene.SphericalToCartesian(az, el, dist).ClampUnit()
	spk.X, spk.Y, spk.Z = pos.X, pos.Y, pos.Z
	spk.Azimuth, spk.Elevation, spk.Distance = az, el, dist
	return spk, nil
}

// field returns the first present key's value, or def.
func field(raw map[string]any, def float64, keys ...string) (float64, error) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		f, ok := number(v)
		if !ok {
			if s, isString := v.(string); isString {
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
					return parsed, nil
				}
			}
			return 0, fmt.Errorf("%s is not a number: %v", k, v)
		}
		return f, nil
	}
	return def, nil
}

// number accepts the numeric types produced by the YAML decoder.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float64:
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
