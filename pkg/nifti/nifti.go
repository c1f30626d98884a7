// Package nifti reads NIfTI-1 volumes (.nii and .nii.gz) into the dense
// in-memory form the rest of the application works with. Only the header
// fields needed for annotation work are interpreted: dimensions, voxel
// spacing, intensity scaling and the q-offset origin.
package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"

	"quicklabel3d/pkg/volume"
)

// NIfTI-1 datatype codes.
const (
	typeUint8   = 2
	typeInt16   = 4
	typeInt32   = 8
	typeFloat32 = 16
	typeFloat64 = 64
	typeUint16  = 512
)

const headerSize = 348

// Load reads a NIfTI-1 file into a Volume. Gzip compression is detected
// from the file content, not the extension.
func Load(path string) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br

	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream in %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	vol, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return vol, nil
}

func decode(r io.Reader) (*volume.Volume, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	order := binary.ByteOrder(binary.LittleEndian)
	if binary.LittleEndian.Uint32(raw[0:4]) != headerSize {
		if binary.BigEndian.Uint32(raw[0:4]) != headerSize {
			return nil, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr mismatch)")
		}
		order = binary.BigEndian
	}

	if m := string(raw[344:347]); m != "n+1" && m != "ni1" {
		return nil, fmt.Errorf("not a NIfTI-1 file (magic %q)", m)
	}

	ndim := int(int16(order.Uint16(raw[40:42])))
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("unsupported dimensionality %d", ndim)
	}
	nx := int(int16(order.Uint16(raw[42:44])))
	ny := int(int16(order.Uint16(raw[44:46])))
	nz := int(int16(order.Uint16(raw[46:48])))
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid dimensions (%d, %d, %d)", nx, ny, nz)
	}
	// Trailing dims (time, vectors) must be singleton for a 3D annotation
	// target.
	for d := 4; d <= ndim; d++ {
		extent := int(int16(order.Uint16(raw[40+2*d : 42+2*d])))
		if extent > 1 {
			return nil, fmt.Errorf("volume has non-singleton dimension %d (extent %d)", d, extent)
		}
	}

	datatype := int(int16(order.Uint16(raw[70:72])))
	bitpix := int(int16(order.Uint16(raw[72:74])))

	var elemSize int
	switch datatype {
	case typeUint8:
		elemSize = 1
	case typeInt16, typeUint16:
		elemSize = 2
	case typeInt32, typeFloat32:
		elemSize = 4
	case typeFloat64:
		elemSize = 8
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype %d", datatype)
	}
	if bitpix != elemSize*8 {
		return nil, fmt.Errorf("bitpix %d does not match datatype %d (want %d)", bitpix, datatype, elemSize*8)
	}

	pixdim := func(i int) float64 {
		return float64(math.Float32frombits(order.Uint32(raw[76+4*i : 80+4*i])))
	}
	sx, sy, sz := pixdim(1), pixdim(2), pixdim(3)
	if sx <= 0 {
		sx = 1
	}
	if sy <= 0 {
		sy = 1
	}
	if sz <= 0 {
		sz = 1
	}

	voxOffset := int64(math.Float32frombits(order.Uint32(raw[108:112])))
	sclSlope := float64(math.Float32frombits(order.Uint32(raw[112:116])))
	sclInter := float64(math.Float32frombits(order.Uint32(raw[116:120])))
	if sclSlope == 0 {
		sclSlope, sclInter = 1, 0
	}

	qoffsetX := float64(math.Float32frombits(order.Uint32(raw[268:272])))
	qoffsetY := float64(math.Float32frombits(order.Uint32(raw[272:276])))
	qoffsetZ := float64(math.Float32frombits(order.Uint32(raw[276:280])))

	// Skip any extensions between the header and the voxel data.
	if voxOffset > headerSize {
		if _, err := io.CopyN(io.Discard, r, voxOffset-headerSize); err != nil {
			return nil, fmt.Errorf("skipping to voxel data: %w", err)
		}
	}

	n := nx * ny * nz
	buf := make([]byte, n*elemSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading voxel data: %w", err)
	}

	data := make([]float64, n)
	switch datatype {
	case typeUint8:
		for i := range data {
			data[i] = float64(buf[i])
		}
	case typeInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(buf[2*i : 2*i+2])))
		}
	case typeUint16:
		for i := range data {
			data[i] = float64(order.Uint16(buf[2*i : 2*i+2]))
		}
	case typeInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(buf[4*i : 4*i+4])))
		}
	case typeFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(buf[4*i : 4*i+4])))
		}
	case typeFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(buf[8*i : 8*i+8]))
		}
	}

	if sclSlope != 1 || sclInter != 0 {
		for i := range data {
			data[i] = data[i]*sclSlope + sclInter
		}
	}

	// NIfTI stores X fastest; our (Z, Y, X) row-major layout matches the
	// on-disk order directly, so no transpose is needed.
	return volume.New(
		data,
		[3]int{nz, ny, nx},
		[3]float64{sz, sy, sx},
		[3]float64{qoffsetZ, qoffsetY, qoffsetX},
	)
}
