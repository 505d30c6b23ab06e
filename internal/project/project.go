// Package project reads and writes the description of a mapping setup:
// objects, textures and calibrated cameras.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current file version.
const Version = 1

// File represents a project file (.yaml, .yml or .json).
type File struct {
	Version  int       `json:"version" yaml:"version"`
	Name     string    `json:"name" yaml:"name"`
	Modified time.Time `json:"modified" yaml:"modified"`

	// Textures is the directory searched for object textures, relative to
	// the project file.
	Textures string `json:"textures,omitempty" yaml:"textures,omitempty"`

	Objects []Object `json:"objects" yaml:"objects"`
	Cameras []Camera `json:"cameras" yaml:"cameras"`
	// Ghosts are cameras rendered by other processes.
	Ghosts []Camera `json:"ghosts,omitempty" yaml:"ghosts,omitempty"`
}

// Object describes a mesh: a primitive or an OBJ file relative to the
// project file.
type Object struct {
	Name      string     `json:"name" yaml:"name"`
	Primitive string     `json:"primitive,omitempty" yaml:"primitive,omitempty"`
	Mesh      string     `json:"mesh,omitempty" yaml:"mesh,omitempty"`
	Size      float64    `json:"size,omitempty" yaml:"size,omitempty"`
	Divisions int        `json:"divisions,omitempty" yaml:"divisions,omitempty"`
	Position  [3]float64 `json:"position" yaml:"position,flow"`
	Rotation  [3]float64 `json:"rotation" yaml:"rotation,flow"`
	Scale     [3]float64 `json:"scale" yaml:"scale,flow"`
	Texture   string     `json:"texture,omitempty" yaml:"texture,omitempty"`
	Fill      string     `json:"fill,omitempty" yaml:"fill,omitempty"`
	Color     [4]float64 `json:"color" yaml:"color,flow"`
}

// Camera describes a projector.
type Camera struct {
	Name               string       `json:"name" yaml:"name"`
	Size               [2]int       `json:"size" yaml:"size,flow"`
	Fov                float64      `json:"fov,omitempty" yaml:"fov,omitempty"`
	Eye                [3]float64   `json:"eye" yaml:"eye,flow"`
	Target             [3]float64   `json:"target" yaml:"target,flow"`
	Up                 [3]float64   `json:"up" yaml:"up,flow"`
	PrincipalPoint     [2]float64   `json:"principal_point" yaml:"principal_point,flow"`
	LockFov            bool         `json:"lock_fov,omitempty" yaml:"lock_fov,omitempty"`
	LockPrincipalPoint bool         `json:"lock_principal_point,omitempty" yaml:"lock_principal_point,omitempty"`
	BlendWidth         float64      `json:"blend_width,omitempty" yaml:"blend_width,omitempty"`
	BlendPrecision     float64      `json:"blend_precision,omitempty" yaml:"blend_precision,omitempty"`
	Objects            []string     `json:"objects,omitempty" yaml:"objects,flow,omitempty"`
	CalibrationPoints  [][6]float64 `json:"calibration_points,omitempty" yaml:"calibration_points,omitempty"`
}

// New creates an empty project.
func New(name string) *File {
	return &File{Version: Version, Name: name, Modified: time.Now()}
}

func isYAML(path string) (bool, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return true, nil
	case ".json":
		return false, nil
	default:
		return false, fmt.Errorf("project: %s: unknown format %q", path, ext)
	}
}

// Load loads a project file.
func Load(path string) (*File, error) {
	yml, err := isYAML(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}

	var p File
	if yml {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("project: parse %s: %w", path, err)
	}
	if p.Version > Version {
		return nil, fmt.Errorf("project: %s: version %d is newer than %d", path, p.Version, Version)
	}
	return &p, nil
}

// Save writes the project, in the format of the extension.
func (p *File) Save(path string) error {
	yml, err := isYAML(path)
	if err != nil {
		return err
	}
	p.Version = Version
	p.Modified = time.Now()

	var data []byte
	if yml {
		data, err = yaml.Marshal(p)
	} else {
		data, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("project: encode: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve returns rel as an absolute path relative to the project file
// at projectPath.
func Resolve(projectPath, rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(projectPath), rel)
}

// Camera returns the camera entry with the given name, local or ghost.
func (p *File) Camera(name string) (*Camera, bool) {
	for i := range p.Cameras {
		if p.Cameras[i].Name == name {
			return &p.Cameras[i], true
		}
	}
	for i := range p.Ghosts {
		if p.Ghosts[i].Name == name {
			return &p.Ghosts[i], true
		}
	}
	return nil, false
}
