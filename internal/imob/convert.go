package imob

// convert.go provides the type coercion rules applied after the derivation
// formulas. Both rules degrade to nil instead of failing: a malformed cell
// is a data-quality issue to review later, never a reason to block the
// batch. This is deliberately the opposite of the fail-closed policy on
// the remote read path.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// brlTimestampRegex matches the source system's date format: DD/MM/YYYY,
// optionally followed by HH:MM:SS after a space or a literal T.
var brlTimestampRegex = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})(?:[ T](\d{2}):(\d{2}):(\d{2}))?`)

// CoerceBigint coerces a value for a bigint-typed column.
// Returns int64 or nil; non-numeric input never raises.
func CoerceBigint(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		return n
	default:
		return nil
	}
}

// CoerceTimestamp coerces a value for a timestamp-typed column into an
// ISO-8601 string (YYYY-MM-DDTHH:MM:SS). Missing time parts default to
// midnight. Unparseable input and semantically invalid dates such as
// 31/02/2024 become nil.
func CoerceTimestamp(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}

	m := brlTimestampRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, minute, second := 0, 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		second, _ = strconv.Atoi(m[6])
	}

	// time.Date normalizes out-of-range components (Feb 30 becomes Mar 1),
	// so a round-trip mismatch means the date was invalid.
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return nil
	}

	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", year, month, day, hour, minute, second)
}
