package csv

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// decodeReader wraps src with a character-set decoder when the declared
// encoding is not UTF-8. The carrier's published extracts are ISO-8859-1;
// tail numbers and airport names occasionally carry bytes that would
// otherwise surface as invalid UTF-8 in the sink.
//
// The returned value preserves Close() by embedding the underlying ReadCloser.
func decodeReader(src io.ReadCloser, name string) (io.ReadCloser, error) {
	enc, err := encodingByName(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return src, nil
	}

	type rc struct {
		io.Reader
		io.Closer
	}
	return &rc{
		Reader: transform.NewReader(src, enc.NewDecoder()),
		Closer: src,
	}, nil
}

// encodingByName resolves the config spelling of an encoding. nil means the
// stream is already UTF-8 and needs no transform.
func encodingByName(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "iso-8859-1", "iso8859-1", "latin-1", "latin1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}
