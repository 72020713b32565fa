package http3

import (
	"errors"

	"golang.org/x/net/http2/hpack"
)

// ErrDynamicTableReference is returned when a field line references the
// QPACK dynamic table, which this core never populates (spec.md §4.I:
// "treat dynamic-table references as errors and close stream").
var ErrDynamicTableReference = errors.New("http3: dynamic table reference not supported")

// ErrUnknownFieldLine is returned for a field-line pattern this decoder
// does not recognise.
var ErrUnknownFieldLine = errors.New("http3: unrecognised QPACK field line")

// DecodeFieldSection decodes a QPACK-encoded HEADERS payload into a
// name/value map, supporting Indexed Field Line and Literal Field Line
// With Name Reference against the static table only (RFC 9204 §4.5).
// Any reference into the dynamic table (T=0) fails closed.
func DecodeFieldSection(payload []byte) (map[string]string, error) {
	if len(payload) < 2 {
		return nil, ErrUnknownFieldLine
	}

	// Encoded Field Section Prefix: Required Insert Count as an
	// 8-bit-prefix integer, then Delta Base as a sign bit followed by a
	// 7-bit-prefix integer. This core never grows a dynamic table, so both
	// must decode to zero.
	requiredInsertCount, n1, err := decodePrefixInt(payload[0:1], 8)
	if err != nil {
		return nil, err
	}
	deltaBase, n2, err := decodePrefixInt(payload[n1:], 7)
	if err != nil {
		return nil, err
	}
	if requiredInsertCount != 0 || deltaBase != 0 {
		return nil, ErrDynamicTableReference
	}

	headers := make(map[string]string)
	data := payload[n1+n2:]
	for len(data) > 0 {
		consumed, err := decodeFieldLine(data, headers)
		if err != nil {
			return nil, err
		}
		data = data[consumed:]
	}
	return headers, nil
}

func decodeFieldLine(data []byte, out map[string]string) (int, error) {
	first := data[0]
	switch {
	case first&0x80 != 0:
		// Indexed Field Line: 1 T index(6+)
		if first&0x40 == 0 {
			return 0, ErrDynamicTableReference
		}
		idx, n, err := decodePrefixInt(data, 6)
		if err != nil {
			return 0, err
		}
		entry, ok := lookupStatic(idx)
		if !ok {
			return 0, ErrUnknownFieldLine
		}
		out[entry.Name] = entry.Value
		return n, nil

	case first&0x40 != 0:
		// Literal Field Line With Name Reference: 01 N T index(4)
		if first&0x10 == 0 {
			return 0, ErrDynamicTableReference
		}
		idx, n, err := decodePrefixInt(data, 4)
		if err != nil {
			return 0, err
		}
		entry, ok := lookupStatic(idx)
		if !ok {
			return 0, ErrUnknownFieldLine
		}
		value, vn, err := decodeString(data[n:])
		if err != nil {
			return 0, err
		}
		out[entry.Name] = value
		return n + vn, nil

	case first&0x20 != 0:
		// Literal Field Line With Literal Name: 001 N H nameLen(3), name
		// string, then a standard 7-bit-prefixed value string.
		nameHuffman := first&0x08 != 0
		nameLen, n, err := decodePrefixInt(data, 3)
		if err != nil {
			return 0, err
		}
		if n+int(nameLen) > len(data) {
			return 0, ErrUnknownFieldLine
		}
		rawName := data[n : n+int(nameLen)]
		n += int(nameLen)

		name := string(rawName)
		if nameHuffman {
			name, err = hpack.HuffmanDecodeToString(rawName)
			if err != nil {
				return 0, err
			}
		}

		value, vn, err := decodeString(data[n:])
		if err != nil {
			return 0, err
		}
		out[name] = value
		return n + vn, nil

	default:
		// Indexed/Literal with Post-Base Index reference the dynamic
		// table exclusively.
		return 0, ErrDynamicTableReference
	}
}

// decodeString decodes an RFC 7541 §5.2 string literal: a Huffman flag
// (high bit H) and a 7-bit-prefix length, followed by that many bytes.
func decodeString(data []byte) (string, int, error) {
	if len(data) == 0 {
		return "", 0, ErrUnknownFieldLine
	}
	huffman := data[0]&0x80 != 0
	length, n, err := decodePrefixInt(data, 7)
	if err != nil {
		return "", 0, err
	}
	if n+int(length) > len(data) {
		return "", 0, ErrUnknownFieldLine
	}
	raw := data[n : n+int(length)]
	if !huffman {
		return string(raw), n + int(length), nil
	}
	s, err := hpack.HuffmanDecodeToString(raw)
	if err != nil {
		return "", 0, err
	}
	return s, n + int(length), nil
}
