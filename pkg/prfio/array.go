// Package prfio reads and writes the binary array files used for voxel
// data, model banks and fitting results.
//
// A file is a fixed header followed by a payload:
//
//	magic "PRFA" | version u8 | flags u8 | xxhash64 u64 | payload length u64 | payload
//
// The checksum covers the uncompressed payload. When flag bit 0 is set the
// payload is zstd compressed. The uncompressed payload is an array count
// (u32) followed, per array, by its name (u16 length + bytes), its rank
// (u8), its dimensions (u32 each) and its values as little-endian float64.
package prfio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	version       = 1
	flagZstd      = 1 << 0
	headerSize    = 4 + 1 + 1 + 8 + 8
	maxNameLength = math.MaxUint16
)

var magic = [4]byte{'P', 'R', 'F', 'A'}

var (
	// ErrFormat is returned for files that are not valid array files
	ErrFormat = errors.New("invalid array file")

	// ErrChecksum is returned when the payload does not match its checksum
	ErrChecksum = errors.New("array file checksum mismatch")
)

// Array is a named, dense, row-major float64 array
type Array struct {
	Name  string
	Shape []int
	Data  []float64
}

// Size returns the number of elements implied by the shape
func (a Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

func (a Array) validate() error {
	if len(a.Name) > maxNameLength {
		return fmt.Errorf("array name too long: %d bytes", len(a.Name))
	}
	if len(a.Shape) > math.MaxUint8 {
		return fmt.Errorf("array %q has rank %d", a.Name, len(a.Shape))
	}
	for _, d := range a.Shape {
		if d < 0 || uint64(d) > math.MaxUint32 {
			return fmt.Errorf("array %q has invalid dimension %d", a.Name, d)
		}
	}
	if a.Size() != len(a.Data) {
		return fmt.Errorf("array %q holds %d values for shape %v", a.Name, len(a.Data), a.Shape)
	}
	return nil
}

// Find returns the array with the given name
func Find(arrays []Array, name string) (Array, bool) {
	for _, a := range arrays {
		if a.Name == name {
			return a, true
		}
	}
	return Array{}, false
}

func encodePayload(arrays []Array) ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	if err := binary.Write(&buf, le, uint32(len(arrays))); err != nil {
		return nil, err
	}
	for _, a := range arrays {
		if err := a.validate(); err != nil {
			return nil, err
		}
		binary.Write(&buf, le, uint16(len(a.Name)))
		buf.WriteString(a.Name)
		buf.WriteByte(uint8(len(a.Shape)))
		for _, d := range a.Shape {
			binary.Write(&buf, le, uint32(d))
		}
		var word [8]byte
		for _, v := range a.Data {
			le.PutUint64(word[:], math.Float64bits(v))
			buf.Write(word[:])
		}
	}
	return buf.Bytes(), nil
}

func decodePayload(payload []byte) ([]Array, error) {
	r := bytes.NewReader(payload)
	le := binary.LittleEndian

	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, fmt.Errorf("%w: reading array count: %v", ErrFormat, err)
	}

	arrays := make([]Array, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, le, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: reading name of array %d: %v", ErrFormat, i, err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("%w: reading name of array %d: %v", ErrFormat, i, err)
		}
		rank, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: reading rank of %q: %v", ErrFormat, name, err)
		}

		dims := make([]uint32, rank)
		if err := binary.Read(r, le, dims); err != nil {
			return nil, fmt.Errorf("%w: reading shape of %q: %v", ErrFormat, name, err)
		}
		// The element count is bounded by the bytes left after every
		// multiply, so it cannot overflow.
		a := Array{Name: string(name), Shape: make([]int, rank)}
		avail := uint64(r.Len()) / 8
		size := uint64(1)
		for j, d := range dims {
			a.Shape[j] = int(d)
			size *= uint64(d)
			if size > avail {
				return nil, fmt.Errorf("%w: array %q shape %v exceeds the %d bytes left",
					ErrFormat, name, dims, r.Len())
			}
		}

		a.Data = make([]float64, size)
		var word [8]byte
		for j := range a.Data {
			if _, err := io.ReadFull(r, word[:]); err != nil {
				return nil, fmt.Errorf("%w: reading values of %q: %v", ErrFormat, name, err)
			}
			a.Data[j] = math.Float64frombits(le.Uint64(word[:]))
		}
		arrays = append(arrays, a)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, r.Len())
	}
	return arrays, nil
}

// Write encodes the arrays to w, compressing the payload when compress is set
func Write(w io.Writer, arrays []Array, compress bool) error {
	payload, err := encodePayload(arrays)
	if err != nil {
		return fmt.Errorf("encoding arrays: %w", err)
	}
	sum := xxhash.Sum64(payload)

	var flags uint8
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		enc.Close()
		flags |= flagZstd
	}

	var header [headerSize]byte
	copy(header[:4], magic[:])
	header[4] = version
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:14], sum)
	binary.LittleEndian.PutUint64(header[14:22], uint64(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

// Read decodes all arrays from r and verifies the checksum
func Read(r io.Reader) ([]Array, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, header[:4])
	}
	if header[4] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, header[4])
	}
	flags := header[5]
	sum := binary.LittleEndian.Uint64(header[6:14])
	length := binary.LittleEndian.Uint64(header[14:22])

	payload, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if uint64(len(payload)) != length {
		return nil, fmt.Errorf("%w: payload truncated at %d of %d bytes", ErrFormat, len(payload), length)
	}

	if flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decompression failed: %v", ErrFormat, err)
		}
	}

	if xxhash.Sum64(payload) != sum {
		return nil, ErrChecksum
	}
	return decodePayload(payload)
}

// WriteFile writes the arrays to path, creating parent directories
func WriteFile(path string, arrays []Array, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	if err := Write(w, arrays, compress); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return file.Close()
}

// ReadFile reads every array stored in path
func ReadFile(path string) ([]Array, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	arrays, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return arrays, nil
}
