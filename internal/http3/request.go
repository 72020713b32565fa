package http3

import "errors"

// ErrNotHeaders is returned when the first frame on a request stream is
// not a HEADERS frame.
var ErrNotHeaders = errors.New("http3: expected HEADERS frame")

// ErrMissingPseudoHeaders is returned when a decoded field section
// lacks :method or :path.
var ErrMissingPseudoHeaders = errors.New("http3: missing :method or :path pseudo-header")

// Request is the subset of an HTTP/3 request this core inspects.
type Request struct {
	Method string
	Path   string
}

// ParseRequest reads the leading HEADERS frame off stream data and
// extracts :method/:path (spec.md §4.I: "parse HEADERS frame on stream
// 0 ... extract :method, :path").
func ParseRequest(streamData []byte) (*Request, error) {
	frame, _, err := ParseFrame(streamData)
	if err != nil {
		return nil, err
	}
	if frame.Type != FrameTypeHeaders {
		return nil, ErrNotHeaders
	}

	fields, err := DecodeFieldSection(frame.Payload)
	if err != nil {
		return nil, err
	}

	method, hasMethod := fields[":method"]
	path, hasPath := fields[":path"]
	if !hasMethod || !hasPath {
		return nil, ErrMissingPseudoHeaders
	}
	return &Request{Method: method, Path: path}, nil
}
