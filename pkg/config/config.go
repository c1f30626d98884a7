// Package config provides configuration loading and management for
// quicklabel3d. It handles loading configuration from YAML files and
// provides default values for the label table, tool settings and file
// naming conventions.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Color is an RGB triple for label and keypoint display.
type Color struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

// Label describes one entry of the annotation label table.
type Label struct {
	// ID is the small integer written into the label volume.
	ID int `yaml:"id"`

	// Name is the human-readable label name.
	Name string `yaml:"name"`

	Color Color `yaml:"color"`

	// ReferenceValue is the externally encoded value for this label in a
	// companion reference-label volume, or 0 when the label has no
	// reference counterpart. Values must be unique across labels.
	ReferenceValue uint16 `yaml:"referenceValue"`
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Labels is the annotation label table.
	Labels []Label `yaml:"labels"`

	// Brush parameters
	Brush struct {
		// DefaultRadius is the brush radius in voxels.
		DefaultRadius int `yaml:"defaultRadius"`

		// MinRadius and MaxRadius bound user adjustment.
		MinRadius int `yaml:"minRadius"`
		MaxRadius int `yaml:"maxRadius"`

		// Volumetric enables the 3D (ball) brush instead of the
		// in-slice disk.
		Volumetric bool `yaml:"volumetric"`
	} `yaml:"brush"`

	// Keypoint parameters
	Keypoint struct {
		// DisplayRadius is the marker radius in display pixels.
		DisplayRadius int `yaml:"displayRadius"`

		// RemovalRadius is the maximum voxel distance for
		// remove-nearest-keypoint.
		RemovalRadius float64 `yaml:"removalRadius"`
	} `yaml:"keypoint"`

	// Display parameters
	Display struct {
		// WindowCenter and WindowWidth are the default intensity window.
		WindowCenter float64 `yaml:"windowCenter"`
		WindowWidth  float64 `yaml:"windowWidth"`

		// MaskOpacity is the overlay alpha (0-255).
		MaskOpacity uint8 `yaml:"maskOpacity"`
	} `yaml:"display"`

	// File naming conventions
	Files struct {
		// ImageSuffix and LabelSuffix identify patient image and
		// reference-label volumes inside a patient folder.
		ImageSuffix string `yaml:"imageSuffix"`
		LabelSuffix string `yaml:"labelSuffix"`

		// AnnotationsDir is the annotation output directory name,
		// relative to the patient folder.
		AnnotationsDir string `yaml:"annotationsDir"`
	} `yaml:"files"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Default label table: seven labels with reference-volume encodings
	// matching the whole-heart segmentation convention, plus one scratch
	// label without a reference counterpart.
	cfg.Labels = []Label{
		{ID: 1, Name: "Label 1", Color: Color{R: 255}, ReferenceValue: 205},
		{ID: 2, Name: "Label 2", Color: Color{G: 255}, ReferenceValue: 420},
		{ID: 3, Name: "Label 3", Color: Color{B: 255}, ReferenceValue: 500},
		{ID: 4, Name: "Label 4", Color: Color{R: 255, G: 255}, ReferenceValue: 550},
		{ID: 5, Name: "Label 5", Color: Color{R: 255, B: 255}, ReferenceValue: 600},
		{ID: 6, Name: "Label 6", Color: Color{G: 255, B: 255}, ReferenceValue: 820},
		{ID: 7, Name: "Label 7", Color: Color{R: 255, G: 128}, ReferenceValue: 850},
		{ID: 8, Name: "Label 8", Color: Color{R: 128, B: 255}},
	}

	// Set default brush parameters
	cfg.Brush.DefaultRadius = 5
	cfg.Brush.MinRadius = 1
	cfg.Brush.MaxRadius = 25
	cfg.Brush.Volumetric = false

	// Set default keypoint parameters
	cfg.Keypoint.DisplayRadius = 5
	cfg.Keypoint.RemovalRadius = 10.0

	// Set default display parameters
	cfg.Display.WindowCenter = 400
	cfg.Display.WindowWidth = 1500
	cfg.Display.MaskOpacity = 128

	// Set default file conventions
	cfg.Files.ImageSuffix = "_image.nii.gz"
	cfg.Files.LabelSuffix = "_label.nii.gz"
	cfg.Files.AnnotationsDir = "annotations"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks label table consistency: positive unique ids and an
// injective reference-value mapping.
func (c *Config) Validate() error {
	seenIDs := make(map[int]bool)
	seenRefs := make(map[uint16]int)
	for _, l := range c.Labels {
		if l.ID <= 0 {
			return fmt.Errorf("label %q has non-positive id %d", l.Name, l.ID)
		}
		if seenIDs[l.ID] {
			return fmt.Errorf("duplicate label id %d", l.ID)
		}
		seenIDs[l.ID] = true
		if l.ReferenceValue != 0 {
			if other, ok := seenRefs[l.ReferenceValue]; ok {
				return fmt.Errorf("labels %d and %d share reference value %d", other, l.ID, l.ReferenceValue)
			}
			seenRefs[l.ReferenceValue] = l.ID
		}
	}
	if c.Brush.MinRadius > c.Brush.MaxRadius {
		return fmt.Errorf("brush minRadius %d exceeds maxRadius %d", c.Brush.MinRadius, c.Brush.MaxRadius)
	}
	return nil
}

// LabelByID returns the label table entry for an id.
func (c *Config) LabelByID(id int) (Label, bool) {
	for _, l := range c.Labels {
		if l.ID == id {
			return l, true
		}
	}
	return Label{}, false
}

// ReferenceValues returns the label-id-to-reference-value mapping for
// labels that have one.
func (c *Config) ReferenceValues() map[int]uint16 {
	out := make(map[int]uint16)
	for _, l := range c.Labels {
		if l.ReferenceValue != 0 {
			out[l.ID] = l.ReferenceValue
		}
	}
	return out
}

// ColorByReferenceValue returns the display color for a raw reference-volume
// value, resolved through the label table.
func (c *Config) ColorByReferenceValue(v uint16) (Color, bool) {
	for _, l := range c.Labels {
		if l.ReferenceValue == v && v != 0 {
			return l.Color, true
		}
	}
	return Color{}, false
}
