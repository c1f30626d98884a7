// Package patient binds one image volume, one annotation store and an
// optional reference-label volume under a lazy load/unload lifecycle, so a
// folder of studies can be browsed without holding every dense grid in
// memory at once.
package patient

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quicklabel3d/pkg/annotation"
	"quicklabel3d/pkg/config"
	"quicklabel3d/pkg/logging"
	"quicklabel3d/pkg/persistence"
	"quicklabel3d/pkg/volume"
)

// ErrUnsavedChanges is returned by Unload when the annotation store is dirty
// and the caller did not ask to discard.
var ErrUnsavedChanges = errors.New("patient has unsaved annotation changes")

// Loader produces a volume from a file path. The concrete NIfTI reader
// satisfies this; tests substitute in-memory volumes.
type Loader interface {
	Load(path string) (*volume.Volume, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (*volume.Volume, error)

// Load calls f.
func (f LoaderFunc) Load(path string) (*volume.Volume, error) { return f(path) }

// Patient is one study: an identifier, file paths, and lazily loaded dense
// state.
type Patient struct {
	ID        string
	ImagePath string

	// MaskPath is the companion reference-label volume, empty when the
	// study has none.
	MaskPath string

	cfg    *config.Config
	loader Loader
	log    *logging.Logger

	image     *volume.Volume
	reference *volume.Volume
	store     *annotation.Store
	loaded    bool
}

// New creates an unloaded patient. The logger may be nil.
func New(id, imagePath, maskPath string, cfg *config.Config, loader Loader, log *logging.Logger) *Patient {
	if log == nil {
		log = logging.Nop()
	}
	return &Patient{
		ID:        id,
		ImagePath: imagePath,
		MaskPath:  maskPath,
		cfg:       cfg,
		loader:    loader,
		log:       log.With("patient", id),
	}
}

// FromImagePath creates a Patient from an image file path, deriving the
// patient id from the configured image suffix and probing for the companion
// reference-label file.
func FromImagePath(imagePath string, cfg *config.Config, loader Loader, log *logging.Logger) *Patient {
	name := filepath.Base(imagePath)
	dir := filepath.Dir(imagePath)

	var id, maskPath string
	if strings.HasSuffix(name, cfg.Files.ImageSuffix) {
		id = strings.TrimSuffix(name, cfg.Files.ImageSuffix)
		candidate := filepath.Join(dir, id+cfg.Files.LabelSuffix)
		if _, err := os.Stat(candidate); err == nil {
			maskPath = candidate
		}
	} else {
		// Generic NIfTI file without the naming convention.
		id = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".nii")
	}

	return New(id, imagePath, maskPath, cfg, loader, log)
}

// Scan lists the patients in a folder by the configured image suffix,
// sorted by id.
func Scan(dir string, cfg *config.Config, loader Loader, log *logging.Logger) ([]*Patient, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning patient folder %s: %w", dir, err)
	}

	var patients []*Patient
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), cfg.Files.ImageSuffix) {
			continue
		}
		patients = append(patients, FromImagePath(filepath.Join(dir, e.Name()), cfg, loader, log))
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].ID < patients[j].ID })
	return patients, nil
}

// IsLoaded reports whether dense state is resident.
func (p *Patient) IsLoaded() bool { return p.loaded }

// Image returns the loaded image volume, or nil when unloaded.
func (p *Patient) Image() *volume.Volume { return p.image }

// Reference returns the loaded reference-label volume, or nil.
func (p *Patient) Reference() *volume.Volume { return p.reference }

// Annotations returns the annotation store, or nil when unloaded.
func (p *Patient) Annotations() *annotation.Store { return p.store }

// Dirty reports whether the patient has unsaved annotation changes.
func (p *Patient) Dirty() bool {
	return p.store != nil && p.store.Dirty()
}

// AnnotationsDir returns the annotation output directory for this patient,
// relative to the image's folder.
func (p *Patient) AnnotationsDir() string {
	return filepath.Join(filepath.Dir(p.ImagePath), p.cfg.Files.AnnotationsDir)
}

// Load populates the image volume, the optional reference volume and the
// annotation store (restoring any persisted annotations). On failure the
// patient is left fully unloaded with no partial state.
func (p *Patient) Load() error {
	if p.loaded {
		return nil
	}

	fail := func(err error) error {
		p.image = nil
		p.reference = nil
		p.store = nil
		return err
	}

	p.log.Info("loading volume", "path", p.ImagePath)
	img, err := p.loader.Load(p.ImagePath)
	if err != nil {
		return fail(fmt.Errorf("loading image for %s: %w", p.ID, err))
	}
	p.image = img

	if p.MaskPath != "" {
		ref, err := p.loader.Load(p.MaskPath)
		if err != nil {
			return fail(fmt.Errorf("loading reference mask for %s: %w", p.ID, err))
		}
		if ref.Shape() != img.Shape() {
			return fail(fmt.Errorf("reference mask shape %v does not match image shape %v for %s",
				ref.Shape(), img.Shape(), p.ID))
		}
		p.reference = ref
	}

	store, err := annotation.NewStore(p.ID, img.Shape())
	if err != nil {
		return fail(fmt.Errorf("creating annotation store for %s: %w", p.ID, err))
	}
	if p.reference != nil {
		if err := store.SetReference(referenceGrid(p.reference), p.cfg.ReferenceValues()); err != nil {
			return fail(fmt.Errorf("attaching reference grid for %s: %w", p.ID, err))
		}
	}

	found, err := persistence.Load(p.AnnotationsDir(), store)
	if err != nil {
		return fail(fmt.Errorf("loading annotations for %s: %w", p.ID, err))
	}
	if found {
		p.log.Info("restored annotations", "keypoints", len(store.Keypoints()))
	}

	p.store = store
	p.loaded = true
	return nil
}

// Unload releases the dense grids. A dirty store blocks unloading unless
// discard is set; the identifier and file paths survive for a later reload.
func (p *Patient) Unload(discard bool) error {
	if !p.loaded {
		return nil
	}
	if p.Dirty() && !discard {
		return fmt.Errorf("unloading %s: %w", p.ID, ErrUnsavedChanges)
	}

	p.image = nil
	p.reference = nil
	p.store = nil
	p.loaded = false
	p.log.Debug("unloaded volumes")
	return nil
}

// Save persists the annotation store. The store keeps its dirty flag on
// failure so nothing is silently lost.
func (p *Patient) Save() error {
	if p.store == nil {
		return fmt.Errorf("saving %s: patient is not loaded", p.ID)
	}
	if err := persistence.Save(p.AnnotationsDir(), p.store); err != nil {
		return err
	}
	p.log.Info("saved annotations", "dir", p.AnnotationsDir())
	return nil
}

// SaveAll saves every loaded, dirty patient and returns how many were
// written. It stops at the first failure so the caller can surface it
// before more unsaved work accumulates.
func SaveAll(patients []*Patient) (int, error) {
	saved := 0
	for _, p := range patients {
		if !p.Dirty() {
			continue
		}
		if err := p.Save(); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// referenceGrid converts a loaded reference-label volume to the integer
// encoding the annotation store tracks claims against.
func referenceGrid(v *volume.Volume) []uint16 {
	data := v.Data()
	out := make([]uint16, len(data))
	for i, f := range data {
		r := math.Round(f)
		if r < 0 {
			r = 0
		}
		if r > math.MaxUint16 {
			r = math.MaxUint16
		}
		out[i] = uint16(r)
	}
	return out
}
