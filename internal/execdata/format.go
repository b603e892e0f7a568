// Package execdata reads, writes and merges JaCoCo execution data files.
package execdata

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/mutf8"
	"github.com/huangsam/covagg/schema"
)

// Block identifiers and header constants of the exec format.
const (
	BlockHeader        byte   = 0x01
	BlockSessionInfo   byte   = 0x10
	BlockExecutionData byte   = 0x11
	MagicNumber        uint16 = 0xC0C0
	FormatVersion      uint16 = 0x1007
)

// maxProbes rejects absurd probe counts before allocating.
const maxProbes = 1 << 24

// Errors describing malformed content. They are wrapped in *contract.CorruptDataError.
var (
	ErrInvalidHeader     = errors.New("invalid execution data file")
	ErrUnsupportedFormat = errors.New("unsupported execution data version")
	ErrUnknownBlock      = errors.New("unknown block type")
	ErrTooManyProbes     = errors.New("probe array too large")
)

// Reader streams the blocks of one exec file to the configured visitors.
type Reader struct {
	r      *bufio.Reader
	offset int64

	// OnSession is called for every session block, if set.
	OnSession func(schema.SessionInfo)
	// OnRecord is called for every execution data block, if set. It may return an error to stop reading.
	OnRecord func(schema.ExecutionRecord) error
}

// NewReader returns a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read consumes the whole input. An empty input is valid.
// Malformed content is reported as *contract.CorruptDataError without a path.
func (r *Reader) Read() error {
	first := true
	for {
		blockStart := r.offset
		kind, err := r.readByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return r.corrupt(blockStart, err)
		}
		if first && kind != BlockHeader {
			return r.corrupt(blockStart, ErrInvalidHeader)
		}
		first = false

		switch kind {
		case BlockHeader:
			err = r.readHeader()
		case BlockSessionInfo:
			err = r.readSession()
		case BlockExecutionData:
			err = r.readRecord()
		default:
			err = fmt.Errorf("%w 0x%02x", ErrUnknownBlock, kind)
		}
		if err != nil {
			var incompatible *contract.IncompatibleDataError
			if errors.As(err, &incompatible) {
				return err
			}
			return r.corrupt(blockStart, err)
		}
	}
}

func (r *Reader) corrupt(offset int64, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &contract.CorruptDataError{Offset: offset, Err: err}
}

func (r *Reader) readHeader() error {
	magic, err := r.readUint16()
	if err != nil {
		return err
	}
	if magic != MagicNumber {
		return ErrInvalidHeader
	}
	version, err := r.readUint16()
	if err != nil {
		return err
	}
	if version != FormatVersion {
		return fmt.Errorf("%w 0x%04x", ErrUnsupportedFormat, version)
	}
	return nil
}

func (r *Reader) readSession() error {
	id, err := r.readUTF()
	if err != nil {
		return err
	}
	start, err := r.readInt64()
	if err != nil {
		return err
	}
	dump, err := r.readInt64()
	if err != nil {
		return err
	}
	if r.OnSession != nil {
		r.OnSession(schema.SessionInfo{ID: id, Start: time.UnixMilli(start), Dump: time.UnixMilli(dump)})
	}
	return nil
}

func (r *Reader) readRecord() error {
	id, err := r.readInt64()
	if err != nil {
		return err
	}
	name, err := r.readUTF()
	if err != nil {
		return err
	}
	probes, err := r.readBoolArray()
	if err != nil {
		return err
	}
	if r.OnRecord != nil {
		return r.OnRecord(schema.ExecutionRecord{ID: uint64(id), Name: name, Probes: probes})
	}
	return nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.offset++
	}
	return b, err
}

func (r *Reader) readFull(buf []byte) error {
	n, err := io.ReadFull(r.r, buf)
	r.offset += int64(n)
	return err
}

func (r *Reader) readUint16() (uint16, error) {
	var buf [2]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (r *Reader) readInt64() (int64, error) {
	var buf [8]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (r *Reader) readUTF() (string, error) {
	n, err := r.readUint16()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := r.readFull(buf); err != nil {
		return "", err
	}
	return mutf8.Decode(buf)
}

// readVarInt reads 7 bits per byte, least significant group first.
func (r *Reader) readVarInt() (int, error) {
	value, shift := 0, 0
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		value |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 28 {
			return 0, ErrTooManyProbes
		}
	}
}

func (r *Reader) readBoolArray() ([]bool, error) {
	n, err := r.readVarInt()
	if err != nil {
		return nil, err
	}
	if n > maxProbes {
		return nil, ErrTooManyProbes
	}
	probes := make([]bool, n)
	var buffer byte
	for i := range probes {
		if i%8 == 0 {
			if buffer, err = r.readByte(); err != nil {
				return nil, err
			}
		}
		probes[i] = buffer&1 != 0
		buffer >>= 1
	}
	return probes, nil
}

// Writer emits exec format blocks. Write errors are sticky and surface at the latest in Flush.
type Writer struct {
	w *bufio.Writer
}

// NewWriter writes the file header and returns a writer for the remaining blocks.
func NewWriter(w io.Writer) (*Writer, error) {
	ew := &Writer{w: bufio.NewWriter(w)}
	if err := ew.WriteHeader(); err != nil {
		return nil, err
	}
	return ew, nil
}

// WriteHeader writes a header block. Several headers may appear in one file.
func (w *Writer) WriteHeader() error {
	_ = w.w.WriteByte(BlockHeader)
	_ = w.writeUint16(MagicNumber)
	return w.writeUint16(FormatVersion)
}

// WriteSession writes a session block.
func (w *Writer) WriteSession(s schema.SessionInfo) error {
	_ = w.w.WriteByte(BlockSessionInfo)
	if err := w.writeUTF(s.ID); err != nil {
		return err
	}
	_ = w.writeInt64(s.Start.UnixMilli())
	return w.writeInt64(s.Dump.UnixMilli())
}

// WriteRecord writes an execution data block.
func (w *Writer) WriteRecord(rec schema.ExecutionRecord) error {
	_ = w.w.WriteByte(BlockExecutionData)
	_ = w.writeInt64(int64(rec.ID))
	if err := w.writeUTF(rec.Name); err != nil {
		return err
	}
	return w.writeBoolArray(rec.Probes)
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) writeUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.w.Write(buf[:])
	return err
}

func (w *Writer) writeInt64(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.w.Write(buf[:])
	return err
}

func (w *Writer) writeUTF(s string) error {
	b := mutf8.Encode(s)
	if len(b) > 0xFFFF {
		return fmt.Errorf("string too long for exec format: %d bytes", len(b))
	}
	_ = w.writeUint16(uint16(len(b)))
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) writeVarInt(v int) error {
	for v&^0x7F != 0 {
		_ = w.w.WriteByte(byte(v&0x7F) | 0x80)
		v >>= 7
	}
	return w.w.WriteByte(byte(v))
}

func (w *Writer) writeBoolArray(probes []bool) error {
	if err := w.writeVarInt(len(probes)); err != nil {
		return err
	}
	var buffer byte
	bits := 0
	for _, p := range probes {
		if p {
			buffer |= 1 << bits
		}
		bits++
		if bits == 8 {
			_ = w.w.WriteByte(buffer)
			buffer, bits = 0, 0
		}
	}
	if bits > 0 {
		return w.w.WriteByte(buffer)
	}
	return nil
}
