// Package device opens and validates the disk or file a replay or stomp
// run operates against. Both tools share the same target contract: raw
// character devices are the intended targets, regular files are permitted
// for rehearsal, and buffered block devices are refused because the page
// cache sits between the tools and the hardware under test.
package device

import (
	"fmt"
	"io"
	"os"

	"github.com/TritonDataCenter/toshstomp/internal/errors"
)

// Kind classifies an accepted target.
type Kind int

const (
	// KindRegular is a plain file.
	KindRegular Kind = iota

	// KindCharDevice is a raw character device.
	KindCharDevice
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular file"
	case KindCharDevice:
		return "character device"
	default:
		return "unknown"
	}
}

// Target is an open I/O target with its measured capacity.
type Target struct {
	f    *os.File
	path string
	kind Kind
	size int64
}

// Open opens the target read-write and validates its type. Directories,
// pipes, sockets, and buffered block devices are rejected.
func Open(path string) (*Target, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.NewTargetError(errors.CodeOpenFailed,
			fmt.Sprintf("open %q", path), err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewTargetError(errors.CodeOpenFailed,
			fmt.Sprintf("stat %q", path), err)
	}

	kind, err := classify(st.Mode())
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &Target{f: f, path: path, kind: kind, size: st.Size()}

	// Character devices often stat with a zero size; measure by seeking.
	if t.size == 0 && kind == KindCharDevice {
		if end, err := f.Seek(0, io.SeekEnd); err == nil {
			t.size = end
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.NewTargetError(errors.CodeOpenFailed,
				fmt.Sprintf("seek %q", path), err)
		}
	}

	return t, nil
}

// classify maps a file mode onto an accepted target kind.
func classify(mode os.FileMode) (Kind, error) {
	switch {
	case mode.IsRegular():
		return KindRegular, nil
	case mode&os.ModeCharDevice != 0:
		return KindCharDevice, nil
	case mode&os.ModeDevice != 0:
		return 0, errors.NewTargetError(errors.CodeBufferedDevice,
			"refusing to operate on (buffered) block device", nil)
	default:
		return 0, errors.NewTargetError(errors.CodeUnsupportedType,
			"unsupported file type", nil)
	}
}

// Path returns the path the target was opened with.
func (t *Target) Path() string {
	return t.path
}

// Kind returns the validated target kind.
func (t *Target) Kind() Kind {
	return t.kind
}

// Size returns the target capacity in bytes.
func (t *Target) Size() int64 {
	return t.size
}

// ReadAt reads len(p) bytes at the given byte offset. The descriptor is
// shared; positioned reads never touch a file cursor.
func (t *Target) ReadAt(p []byte, off int64) (int, error) {
	return t.f.ReadAt(p, off)
}

// WriteAt writes len(p) bytes at the given byte offset.
func (t *Target) WriteAt(p []byte, off int64) (int, error) {
	return t.f.WriteAt(p, off)
}

// Close closes the underlying descriptor.
func (t *Target) Close() error {
	return t.f.Close()
}

// NewPattern returns an n-byte write pattern cycling through 'A'..'Y'.
// The pattern is shared read-only by every writer.
func NewPattern(n int) []byte {
	buf := make([]byte, n)
	c := byte('A')
	for i := range buf {
		buf[i] = c
		c++
		if c == 'Z' {
			c = 'A'
		}
	}
	return buf
}
