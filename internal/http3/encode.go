package http3

// EncodeResponseHeaders builds a QPACK field section for a response
// against the static table only, per spec.md §4.I: a 2-byte prefix
// (Required Insert Count=0, Delta Base=0) followed by one entry for
// :status and one for content-type. Each entry is an Indexed Field Line
// when the exact name/value pair is in the static table, and otherwise
// a Literal Field Line With Name Reference to a static row carrying
// that name.
func EncodeResponseHeaders(status int, contentType string) []byte {
	buf := make([]byte, 0, 8)
	buf = append(buf, 0x00, 0x00) // Required Insert Count=0, Delta Base sign+value=0

	statusValue := statusCodeString(status)
	if idx, ok := findStaticExact(":status", statusValue); ok {
		buf = appendIndexedField(buf, idx)
	} else {
		buf = appendLiteralWithNameRef(buf, 24 /* :status 103, any :status row works for the name */, statusValue)
	}

	if idx, ok := findStaticExact("content-type", contentType); ok {
		buf = appendIndexedField(buf, idx)
	} else {
		buf = appendLiteralWithNameRef(buf, 44 /* content-type */, contentType)
	}

	return buf
}

// appendIndexedField appends an Indexed Field Line referencing the
// static table (T=1): pattern 1 1 index(6+).
func appendIndexedField(dst []byte, idx uint64) []byte {
	return encodePrefixInt(dst, 0xc0, 6, idx)
}

// appendLiteralWithNameRef appends a Literal Field Line With Name
// Reference into the static table (T=1): pattern 01 1 index(4),
// followed by a non-Huffman value string.
func appendLiteralWithNameRef(dst []byte, nameIdx uint64, value string) []byte {
	dst = encodePrefixInt(dst, 0x50, 4, nameIdx)
	dst = encodePrefixInt(dst, 0x00, 7, uint64(len(value)))
	return append(dst, value...)
}

func statusCodeString(status int) string {
	// Three ASCII digits, per spec.md Data Model ("status (3-digit
	// ASCII)"). Avoids strconv for a value that is always in [100,599].
	return string([]byte{
		byte('0' + status/100),
		byte('0' + (status/10)%10),
		byte('0' + status%10),
	})
}
