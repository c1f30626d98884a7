// Package persistence serializes annotation stores to durable per-patient
// state: a JSON metadata record with the keypoint list, and an NPZ archive
// holding the dense label grid. A save is atomic (temp file plus rename) so
// a failed write never corrupts the previous state, and the in-memory store
// only drops its dirty flag after both files land.
package persistence

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
)

// Version is the current metadata record version.
const Version = 1

// labelArrayName is the NPZ entry holding the dense label grid.
const labelArrayName = "label_volume"

// Record is the JSON metadata document saved per patient.
type Record struct {
	Version       int               `json:"version"`
	PatientID     string            `json:"patient_id"`
	Session       string            `json:"session"`
	SavedAt       time.Time         `json:"saved_at"`
	Shape         [3]int            `json:"shape"`
	Keypoints     []models.Keypoint `json:"keypoints"`
	ClaimedLabels []int             `json:"claimed_labels,omitempty"`
}

// ShapeMismatchError reports a persisted grid whose shape disagrees with the
// current volume. Stale annotations from a re-processed image must fail
// loudly instead of being truncated or stretched to fit.
type ShapeMismatchError struct {
	Want [3]int
	Got  [3]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("persisted mask shape %v does not match volume shape %v", e.Got, e.Want)
}

// MetadataPath returns the JSON record path for a patient.
func MetadataPath(dir, patientID string) string {
	return filepath.Join(dir, patientID+".json")
}

// MasksPath returns the NPZ archive path for a patient.
func MasksPath(dir, patientID string) string {
	return filepath.Join(dir, patientID+"_masks.npz")
}

// Save writes the store's full state under dir. The store is marked saved
// only when every write succeeded; on error the previous files are left in
// place and the store stays dirty.
func Save(dir string, store *annotation.Store) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating annotations directory: %w", err)
	}

	keypoints := store.Keypoints()
	sort.Slice(keypoints, func(i, j int) bool { return keypoints[i].ID < keypoints[j].ID })

	record := Record{
		Version:       Version,
		PatientID:     store.PatientID(),
		Session:       uuid.NewString(),
		SavedAt:       time.Now().UTC(),
		Shape:         store.Shape(),
		Keypoints:     keypoints,
		ClaimedLabels: store.ClaimedLabels(),
	}

	if err := writeMasks(MasksPath(dir, store.PatientID()), store); err != nil {
		return fmt.Errorf("saving masks for %s: %w", store.PatientID(), err)
	}
	if err := writeMetadata(MetadataPath(dir, store.PatientID()), record); err != nil {
		return fmt.Errorf("saving metadata for %s: %w", store.PatientID(), err)
	}

	store.MarkSaved()
	return nil
}

func writeMetadata(path string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	})
}

func writeMasks(path string, store *annotation.Store) error {
	return atomicWrite(path, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.BestSpeed)
		})

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   labelArrayName + ".npy",
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		if err := writeNPY(entry, store.LabelData(), store.Shape()); err != nil {
			return err
		}
		return zw.Close()
	})
}

// atomicWrite writes through a temp file in the target directory and renames
// it into place, so readers never observe a partial file.
func atomicWrite(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reconstructs a store's state from dir. The first return is false when
// no annotation record exists for the patient, which is not an error. A
// record whose grid shape disagrees with the store's volume shape fails with
// ShapeMismatchError and leaves the store untouched.
func Load(dir string, store *annotation.Store) (bool, error) {
	record, err := readMetadata(MetadataPath(dir, store.PatientID()))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading metadata for %s: %w", store.PatientID(), err)
	}
	// The record shape guards keypoint coordinates even when no mask
	// archive exists.
	if record.Shape != store.Shape() {
		return false, &ShapeMismatchError{Want: store.Shape(), Got: record.Shape}
	}

	labels, shape, err := readMasks(MasksPath(dir, store.PatientID()))
	if errors.Is(err, os.ErrNotExist) {
		// Keypoint-only annotation; the grid stays empty.
		labels = make([]uint8, store.Shape()[0]*store.Shape()[1]*store.Shape()[2])
		shape = store.Shape()
		err = nil
	}
	if err != nil {
		return false, fmt.Errorf("loading masks for %s: %w", store.PatientID(), err)
	}
	if shape != store.Shape() {
		return false, &ShapeMismatchError{Want: store.Shape(), Got: shape}
	}

	if err := store.Restore(labels, record.Keypoints, record.ClaimedLabels); err != nil {
		return false, fmt.Errorf("restoring annotations for %s: %w", store.PatientID(), err)
	}
	return true, nil
}

func readMetadata(path string) (Record, error) {
	var record Record
	data, err := os.ReadFile(path)
	if err != nil {
		return record, err
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if record.Version > Version {
		return record, fmt.Errorf("annotation record version %d is newer than supported version %d", record.Version, Version)
	}
	return record, nil
}

func readMasks(path string) ([]uint8, [3]int, error) {
	var shape [3]int
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, shape, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != labelArrayName+".npy" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, shape, err
		}
		defer rc.Close()
		return readNPY(rc)
	}
	return nil, shape, fmt.Errorf("mask archive %s has no %q array", filepath.Base(path), labelArrayName)
}
