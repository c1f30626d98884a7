package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/config"
	"quicklabel3d/pkg/logging"
	"quicklabel3d/pkg/nifti"
	"quicklabel3d/pkg/patient"
	"quicklabel3d/pkg/raster"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing patient NIfTI volumes")
	configPath := flag.String("config", "quicklabel3d.yaml", "Configuration file path")
	logMode := flag.String("log", "dev", "Log mode: dev or prod")
	exportSlices := flag.Bool("export-slices", false, "Export annotated slice previews for each patient")
	slicesDir := flag.String("slices-dir", "slice_previews", "Directory to save exported slice previews")
	flag.Parse()

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	log, err := logging.New(*logMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("loading configuration", "path", *configPath, "error", err)
	}

	loader := patient.LoaderFunc(nifti.Load)
	patients, err := patient.Scan(*inputDir, cfg, loader, log)
	if err != nil {
		log.Fatal("scanning patient folder", "dir", *inputDir, "error", err)
	}
	if len(patients) == 0 {
		log.Warn("no patient volumes found", "dir", *inputDir, "suffix", cfg.Files.ImageSuffix)
		return
	}
	log.Info("found patients", "count", len(patients))

	for _, p := range patients {
		if err := p.Load(); err != nil {
			log.Error("skipping patient", "patient", p.ID, "error", err)
			continue
		}

		shape := p.Image().Shape()
		spacing := p.Image().Spacing()
		store := p.Annotations()

		fmt.Printf("%s\n", p.ID)
		fmt.Printf("  shape:     (%d, %d, %d)\n", shape[0], shape[1], shape[2])
		fmt.Printf("  spacing:   (%.2f, %.2f, %.2f)\n", spacing[0], spacing[1], spacing[2])
		fmt.Printf("  reference: %v\n", p.Reference() != nil)
		fmt.Printf("  keypoints: %d\n", len(store.Keypoints()))
		fmt.Printf("  annotated: %v\n", store.HasData())

		if *exportSlices {
			outDir := filepath.Join(*slicesDir, p.ID)
			for _, plane := range []models.Plane{models.Axial, models.Sagittal, models.Coronal} {
				planeDir := filepath.Join(outDir, string(plane))
				log.Info("exporting slice previews", "patient", p.ID, "plane", plane, "dir", planeDir)
				if err := raster.SaveSliceSequence(p.Image(), store, cfg, plane, planeDir); err != nil {
					log.Error("exporting slices failed", "patient", p.ID, "plane", plane, "error", err)
				}
			}
		}

		if err := p.Unload(false); err != nil {
			log.Error("unloading patient", "patient", p.ID, "error", err)
		}
	}
}
