package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// ParseRange interprets a Range header against an object of length bytes.
//
// Supported forms are "bytes=a-b", "bytes=a-" and "bytes=-n"; an end past
// the object is clamped. A missing, malformed or multi-range header is
// ignored and the whole object is selected with partial=false. A range that
// cannot be satisfied returns common.ErrInvalidRange.
func ParseRange(header string, length int64) (start, end int64, partial bool, err error) {
	full := func() (int64, int64, bool, error) { return 0, length - 1, false, nil }

	byteRange, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(byteRange, ",") {
		return full()
	}
	first, last, ok := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !ok {
		return full()
	}

	unsatisfiable := fmt.Errorf("range %q of %d bytes: %w", header, length, common.ErrInvalidRange)

	if first == "" {
		n, perr := strconv.ParseInt(last, 10, 64)
		if perr != nil || n < 0 {
			return full()
		}
		if n == 0 || length == 0 {
			return 0, 0, false, unsatisfiable
		}
		return max(0, length-n), length - 1, true, nil
	}

	start, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil || start < 0 {
		return full()
	}
	end = length - 1
	if last != "" {
		end, perr = strconv.ParseInt(last, 10, 64)
		if perr != nil || end < start {
			return full()
		}
		end = min(end, length-1)
	}
	if start >= length {
		return 0, 0, false, unsatisfiable
	}
	return start, end, true, nil
}

// contentRange formats the Content-Range value of a partial response.
func contentRange(start, end, length int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, length)
}
