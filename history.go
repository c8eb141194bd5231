package visengine

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	stgpsr "github.com/yuin/stagparser"
)

const historyLineWidth = 80

// wtscalRecord names the single AIPS-style keyword ReadHistory/WriteHistory
// understand, keyed by a struct tag the way the ingest collaborator keys
// its TileDB column definitions off `tiledb:"..."` tags.
type wtscalRecord struct {
	WTSCAL float64 `history:"keyword=WTSCAL"`
}

// historyKeyword pulls the keyword name bound to wtscalRecord's single
// field out of its struct tag via stagparser, rather than hard-coding the
// literal "WTSCAL" string at every call site.
func historyKeyword() (string, error) {
	defs, err := stgpsr.ParseStruct(&wtscalRecord{}, "history")
	if err != nil {
		return "", err
	}
	for _, d := range defs["WTSCAL"] {
		if d.Name() == "keyword" {
			if v, ok := d.Attribute("keyword"); ok {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("%w: history tag missing keyword", ErrBadArg)
}

// ReadHistory scans an append-only AIPS-style history stream, 80-column
// space-padded lines, for the most recent "AIPS <keyword> = <value>" line
// (spec.md §6). It returns the absolute value as the weight-scale factor
// and the sign of the recorded value separately, since the sign is applied
// on ingest rather than folded into the magnitude.
func ReadHistory(r io.Reader) (scale float64, sign float64, found bool, err error) {
	keyword, err := historyKeyword()
	if err != nil {
		return 0, 0, false, err
	}
	prefix := "AIPS " + keyword + " ="

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " ")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		field := strings.TrimSpace(line[len(prefix):])
		v, perr := strconv.ParseFloat(field, 64)
		if perr != nil {
			continue
		}
		scale = math.Abs(v)
		sign = 1
		if v < 0 {
			sign = -1
		}
		found = true
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, false, err
	}
	return scale, sign, found, nil
}

// WriteHistory appends one "AIPS <keyword> = <value>" line to w, padded to
// the fixed 80-column width, signing value by sign (spec.md §6). History is
// append-only: callers never rewrite or truncate prior lines.
func WriteHistory(w io.Writer, value, sign float64) error {
	keyword, err := historyKeyword()
	if err != nil {
		return err
	}
	signed := value
	if sign < 0 {
		signed = -value
	}
	line := fmt.Sprintf("AIPS %s = %.8g", keyword, signed)
	if len(line) > historyLineWidth {
		return fmt.Errorf("%w: history line exceeds %d columns", ErrBadArg, historyLineWidth)
	}
	line += strings.Repeat(" ", historyLineWidth-len(line))
	_, err = fmt.Fprintln(w, line)
	return err
}
