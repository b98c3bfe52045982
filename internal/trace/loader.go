package trace

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/errors"
	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// Trace record tokens. The tokens carry their surrounding spaces so
// records can be fished out of richer log streams; a value terminates at
// a space or the end of the line.
const (
	tokIOStart = " -> "
	tokRead    = " type=R "
	tokWrite   = " type=W "
	tokBlkno   = " blkno="
	tokSize    = " size="
)

// Stats summarizes a loaded trace.
type Stats struct {
	// Operations, Reads, and Writes count the loaded records
	Operations int
	Reads      int
	Writes     int

	// Lines is the number of input lines consumed, records or not
	Lines int

	// Truncated reports that loading stopped at the time cap
	Truncated bool

	// Fingerprint identifies the capture independent of its encoding
	Fingerprint string
}

// Loader parses a replay log into operations ready for dispatch.
type Loader struct {
	blockSize  int64
	patternMax int64
	timeCap    int64
	clamp      bool
	targetSize int64
}

// NewLoader returns a loader validating against the given target capacity.
func NewLoader(cfg config.ReplayConfig, targetSize int64) *Loader {
	return &Loader{
		blockSize:  cfg.BlockSize,
		patternMax: int64(cfg.PatternBufSize),
		timeCap:    cfg.TimeCap.Nanoseconds(),
		clamp:      cfg.Clamp,
		targetSize: targetSize,
	}
}

// Load parses the stream into operations. Lines without the " -> "
// marker are skipped. A malformed record, a time regression, or an
// operation that cannot fit the target aborts the load; loading also
// stops once a record's time offset exceeds the cap, keeping that
// record. Scheduled times must be non-decreasing.
func (l *Loader) Load(r io.Reader) ([]types.Operation, *Stats, error) {
	ops := make([]types.Operation, 0, 1024)
	stats := &Stats{}
	fp := NewFingerprint()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineno := 0
	prevSched := int64(math.MinInt64)

	for sc.Scan() {
		line := sc.Text()
		lineno++

		if !strings.Contains(line, tokIOStart) {
			continue
		}

		var op types.Operation

		if strings.Contains(line, tokRead) {
			op.Dir = types.DirRead
		} else if strings.Contains(line, tokWrite) {
			op.Dir = types.DirWrite
		} else {
			return nil, nil, errors.NewParseError(errors.CodeMissingField,
				fmt.Sprintf("line %d: could not determine I/O type", lineno))
		}

		// The time offset leads the record.
		sched, end, overflow := scanInt64(line)
		if overflow {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: illegal time offset", lineno))
		}
		if end >= len(line) || line[end] != ' ' {
			return nil, nil, errors.NewParseError(errors.CodeInvalidValue,
				fmt.Sprintf("line %d: invalid time offset", lineno))
		}
		if sched < 0 {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: negative time offset", lineno))
		}

		blkno, err := readField(lineno, line, tokBlkno)
		if err != nil {
			return nil, nil, err
		}
		size, err := readField(lineno, line, tokSize)
		if err != nil {
			return nil, nil, err
		}

		if blkno < 0 {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: negative value for field '%s'", lineno, tokBlkno))
		}
		if size <= 0 {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: operation size must be positive", lineno))
		}
		if size > l.patternMax {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: size %d exceeds pattern buffer (%d bytes)", lineno, size, l.patternMax))
		}

		if sched < prevSched {
			return nil, nil, errors.NewParseError(errors.CodeTimeRegression,
				fmt.Sprintf("line %d: time offset %d regresses below %d", lineno, sched, prevSched))
		}
		prevSched = sched

		// Fingerprint the record as captured, before any clamping.
		fp.Add(sched, op.Dir, blkno, size)

		if blkno > math.MaxInt64/l.blockSize {
			return nil, nil, errors.NewParseError(errors.CodeIllegalValue,
				fmt.Sprintf("line %d: illegal value for field '%s'", lineno, tokBlkno))
		}
		offset := blkno * l.blockSize

		if offset > math.MaxInt64-size || offset+size > l.targetSize {
			if !l.clamp {
				return nil, nil, errors.NewCapacityError(errors.CodeOffsetBeyondEnd,
					fmt.Sprintf("line %d: offset %d exceeds size (%d)", lineno, offset, l.targetSize))
			}
			if size > l.targetSize {
				return nil, nil, errors.NewCapacityError(errors.CodeUnclampableSize,
					fmt.Sprintf("line %d: size %d exceeds target size (%d)", lineno, size, l.targetSize))
			}
			clamped := (l.targetSize - size) &^ (l.blockSize - 1)
			log.Printf("line %d: offset %d exceeds %d; clamped to %d",
				lineno, offset, l.targetSize, clamped)
			offset = clamped
		}

		op.Offset = offset
		op.Size = size
		op.Sched = sched

		if op.IsRead() {
			stats.Reads++
		} else {
			stats.Writes++
		}
		stats.Operations++
		ops = append(ops, op)

		if sched > l.timeCap {
			stats.Truncated = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCategoryParse, errors.CodeSourceUnavailable,
			"reading replay log", err)
	}

	stats.Lines = lineno
	stats.Fingerprint = fp.Sum()
	return ops, stats, nil
}

// readField extracts the integer following a field token. The value must
// terminate at a space or the end of the line.
func readField(lineno int, line, field string) (int64, error) {
	idx := strings.Index(line, field)
	if idx < 0 {
		return 0, errors.NewParseError(errors.CodeMissingField,
			fmt.Sprintf("line %d: missing required field '%s'", lineno, field))
	}

	rest := line[idx+len(field):]
	v, end, overflow := scanInt64(rest)
	if overflow {
		return 0, errors.NewParseError(errors.CodeIllegalValue,
			fmt.Sprintf("line %d: illegal value for field '%s'", lineno, field))
	}

	// end of zero means no digits were consumed
	terminated := (end < len(rest) && rest[end] == ' ') || (end == len(rest) && end != 0)
	if !terminated {
		return 0, errors.NewParseError(errors.CodeInvalidValue,
			fmt.Sprintf("line %d: invalid value for field '%s'", lineno, field))
	}
	return v, nil
}

// scanInt64 consumes an optionally signed decimal integer from the start
// of s, skipping leading blanks the way strtoll does. It returns the
// value, the index one past the last digit (zero when no digits were
// found), and whether the value overflowed int64.
func scanInt64(s string) (v int64, end int, overflow bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var u uint64
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		d := uint64(s[i] - '0')
		if u > (math.MaxUint64-d)/10 {
			overflow = true
		} else {
			u = u*10 + d
		}
		digits++
		i++
	}
	if digits == 0 {
		return 0, 0, false
	}

	if neg {
		const limit = uint64(1) << 63
		if overflow || u > limit {
			return math.MinInt64, i, true
		}
		if u == limit {
			return math.MinInt64, i, false
		}
		return -int64(u), i, false
	}
	if overflow || u > math.MaxInt64 {
		return math.MaxInt64, i, true
	}
	return int64(u), i, false
}
