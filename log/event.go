package log

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/toon-format/toon-go"
)

var eventHdrPrefix = []byte("--- ")

// MarshalEventLine frames d as a record that can be appended to a text file:
//
//	--- ${len(d)} ${unix_ms} ${name}
//	${d}
//
// A newline is added after d if it doesn't end with one.
func MarshalEventLine(name string, t time.Time, d []byte) []byte {
	var wb bytes.Buffer
	wb.Grow(len(eventHdrPrefix) + len(name) + len(d) + 32)
	wb.Write(eventHdrPrefix)
	wb.WriteString(strconv.Itoa(len(d)))
	wb.WriteByte(' ')
	wb.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	if name != "" {
		wb.WriteByte(' ')
		wb.WriteString(name)
	}
	wb.WriteByte('\n')
	if n := len(d); n > 0 {
		wb.Write(d)
		if d[n-1] != '\n' {
			wb.WriteByte('\n')
		}
	}
	return wb.Bytes()
}

// simpleTypeToStr converts keys to string
// errors on complex types
func simpleTypeToStr(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("key is nil")
	}
	rt := reflect.TypeOf(v)
	switch rt.Kind() {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer, reflect.Func:
		return "", fmt.Errorf("key is of kind %v", rt.Kind())
	case reflect.String:
		return v.(string), nil
	}
	return fmt.Sprintf("%v", v), nil
}

// EventData encodes key/value pairs as toon
func EventData(vals ...any) ([]byte, error) {
	n := len(vals)
	if n%2 != 0 {
		return nil, fmt.Errorf("odd number of values (%d)", n)
	}
	if n == 0 {
		return nil, nil
	}
	m := map[string]any{}
	for i := 0; i < n; i += 2 {
		k, err := simpleTypeToStr(vals[i])
		if err != nil {
			return nil, err
		}
		m[k] = vals[i+1]
	}
	return toon.Marshal(m)
}

// Event logs event with key/value pairs e.g.
// Event("embfile.dump", "path", path, "records", 12)
// Events go to <dir>/events, when logging to files is enabled, and are
// printed by Verbosef()
func Event(name string, vals ...any) {
	d, err := EventData(vals...)
	if err != nil {
		Errorf("Event('%s'): %s", name, err)
		return
	}
	Verbosef("event %s %s\n", name, bytes.TrimSpace(d))
	line := MarshalEventLine(name, time.Now().UTC(), d)
	mu.Lock()
	_ = eventsLog.Write(line)
	mu.Unlock()
}

// EventWithDuration is Event with "durms" value added
func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durms", float64(dur.Microseconds())/1000.0)
	Event(name, vals...)
}
