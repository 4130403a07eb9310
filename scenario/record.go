package scenario

import (
	"fmt"
	"io"
	"strconv"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// Record is an entry in the trace of a scenario run.
type Record struct {
	// Tick is the tick count at the time of the record.
	Tick int64 `json:"tick"`
	// Thread is the name of the thread the record concerns.
	Thread string `json:"thread"`
	// Kind is either the sched.EventKind of a scheduling event, or "log".
	Kind string `json:"kind"`
	// Detail depends on Kind, e.g. the message of a log step.
	Detail string `json:"detail,omitempty"`
}

// KindLog identifies records produced by log steps.
const KindLog = `log`

// AppendJSON appends x as a JSON object to dst.
func (x Record) AppendJSON(dst []byte) []byte {
	dst = append(dst, `{"tick":`...)
	dst = strconv.AppendInt(dst, x.Tick, 10)
	dst = append(dst, `,"thread":`...)
	dst = jsonenc.AppendString(dst, x.Thread)
	dst = append(dst, `,"kind":`...)
	dst = jsonenc.AppendString(dst, x.Kind)
	if x.Detail != `` {
		dst = append(dst, `,"detail":`...)
		dst = jsonenc.AppendString(dst, x.Detail)
	}
	return append(dst, '}')
}

func (x Record) String() string {
	if x.Detail == `` {
		return fmt.Sprintf(`%d %s %s`, x.Tick, x.Thread, x.Kind)
	}
	return fmt.Sprintf(`%d %s %s %s`, x.Tick, x.Thread, x.Kind, x.Detail)
}

// WriteJSONLines writes records to w, one JSON object per line.
func WriteJSONLines(w io.Writer, records []Record) error {
	var buf []byte
	for _, rec := range records {
		buf = rec.AppendJSON(buf)
		buf = append(buf, '\n')
		if len(buf) >= 32<<10 {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) != 0 {
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
