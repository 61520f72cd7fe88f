package timeline

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/starford/cueflow/internal/models"
)

// Show file extensions. The extension selects the codec: msgpack for .mpk,
// gzipped JSON for .gz, plain indented JSON otherwise.
const (
	ExtJSON    = ".json"
	ExtGzip    = ".gz"
	ExtMsgpack = ".mpk"
)

// IsShowFile reports whether name looks like a timeline show file.
func IsShowFile(name string) bool {
	return strings.HasSuffix(name, ExtJSON) ||
		strings.HasSuffix(name, ExtJSON+ExtGzip) ||
		strings.HasSuffix(name, ExtMsgpack)
}

// Format names the codec a file name selects.
func Format(name string) string {
	switch {
	case strings.HasSuffix(name, ExtMsgpack):
		return "msgpack"
	case strings.HasSuffix(name, ExtGzip):
		return "json.gz"
	default:
		return "json"
	}
}

// Encode serializes a timeline for the given file name.
func Encode(name string, tl *models.Timeline) ([]byte, error) {
	switch {
	case strings.HasSuffix(name, ExtMsgpack):
		data, err := msgpack.Marshal(tl)
		if err != nil {
			return nil, fmt.Errorf("timeline: msgpack encode: %w", err)
		}
		return data, nil

	case strings.HasSuffix(name, ExtGzip):
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if err := json.NewEncoder(zw).Encode(tl); err != nil {
			return nil, fmt.Errorf("timeline: gzip encode: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("timeline: gzip close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		data, err := json.MarshalIndent(tl, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("timeline: json encode: %w", err)
		}
		return data, nil
	}
}

// Decode deserializes a timeline from show file bytes. The result is
// validated before being returned.
func Decode(name string, data []byte) (*models.Timeline, error) {
	var tl models.Timeline
	switch {
	case strings.HasSuffix(name, ExtMsgpack):
		if err := msgpack.Unmarshal(data, &tl); err != nil {
			return nil, fmt.Errorf("timeline: msgpack decode: %w", err)
		}

	case strings.HasSuffix(name, ExtGzip):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("timeline: gzip open: %w", err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("timeline: gzip read: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("timeline: gzip close: %w", err)
		}
		if err := json.Unmarshal(raw, &tl); err != nil {
			return nil, fmt.Errorf("timeline: json decode: %w", err)
		}

	default:
		if err := json.Unmarshal(data, &tl); err != nil {
			return nil, fmt.Errorf("timeline: json decode: %w", err)
		}
	}

	if err := Validate(&tl); err != nil {
		return nil, err
	}
	return &tl, nil
}
