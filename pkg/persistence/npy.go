package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Minimal NPY (numpy array format v1.0) support for the one array type the
// annotation archive contains: a C-ordered uint8 grid. Keeping the mask
// archive in NPZ form means saved annotations stay loadable by the usual
// scientific Python tooling.

var npyMagic = []byte("\x93NUMPY")

// writeNPY serializes a uint8 array with the given (Z, Y, X) shape.
func writeNPY(w io.Writer, data []uint8, shape [3]int) error {
	header := fmt.Sprintf("{'descr': '|u1', 'fortran_order': False, 'shape': (%d, %d, %d), }",
		shape[0], shape[1], shape[2])

	// Total preamble (magic + version + length field + header) pads to a
	// multiple of 64 bytes, terminated by a newline.
	preamble := len(npyMagic) + 2 + 2
	pad := 64 - (preamble+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readNPY parses a uint8 array written by writeNPY (or numpy itself).
func readNPY(r io.Reader) ([]uint8, [3]int, error) {
	var shape [3]int

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, shape, fmt.Errorf("reading npy magic: %w", err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return nil, shape, fmt.Errorf("not an npy array (bad magic)")
	}
	if magic[len(npyMagic)] != 1 {
		return nil, shape, fmt.Errorf("unsupported npy version %d.%d", magic[len(npyMagic)], magic[len(npyMagic)+1])
	}

	var headerLen uint16
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, shape, fmt.Errorf("reading npy header length: %w", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, shape, fmt.Errorf("reading npy header: %w", err)
	}
	header := string(headerBytes)

	descr, err := headerField(header, "descr")
	if err != nil {
		return nil, shape, err
	}
	if descr != "|u1" && descr != "uint8" {
		return nil, shape, fmt.Errorf("unsupported npy dtype %q (want |u1)", descr)
	}
	order, err := headerField(header, "fortran_order")
	if err != nil {
		return nil, shape, err
	}
	if order != "False" {
		return nil, shape, fmt.Errorf("fortran-ordered npy arrays are not supported")
	}

	shape, err = headerShape(header)
	if err != nil {
		return nil, shape, err
	}

	data := make([]uint8, shape[0]*shape[1]*shape[2])
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, shape, fmt.Errorf("reading npy data: %w", err)
	}
	return data, shape, nil
}

// headerField extracts one value from the python-dict-literal npy header.
func headerField(header, key string) (string, error) {
	idx := strings.Index(header, "'"+key+"'")
	if idx < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	rest := header[idx+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", fmt.Errorf("malformed npy header near %q", key)
	}
	rest = strings.TrimLeft(rest[colon+1:], " ")
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		end = len(rest)
	}
	return strings.Trim(strings.TrimSpace(rest[:end]), "'"), nil
}

func headerShape(header string) ([3]int, error) {
	var shape [3]int
	open := strings.Index(header, "(")
	close := strings.Index(header, ")")
	if open < 0 || close < open {
		return shape, fmt.Errorf("npy header missing shape tuple")
	}
	parts := strings.Split(header[open+1:close], ",")
	dims := make([]int, 0, 3)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return shape, fmt.Errorf("bad npy shape component %q: %w", p, err)
		}
		if n <= 0 {
			return shape, fmt.Errorf("npy shape component %d must be positive", n)
		}
		dims = append(dims, n)
	}
	if len(dims) != 3 {
		return shape, fmt.Errorf("npy array has %d dimensions, want 3", len(dims))
	}
	copy(shape[:], dims)
	return shape, nil
}
