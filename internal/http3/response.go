package http3

// BuildResponse serialises status/contentType/body as a HEADERS frame
// followed by a DATA frame (spec.md Data Model: "HTTP/3 Response ...
// Serialised as a HEADERS frame carrying QPACK-encoded :status and
// content-type ... followed by a DATA frame").
func BuildResponse(status int, contentType string, body []byte) []byte {
	headers := EncodeResponseHeaders(status, contentType)
	out := BuildHeadersFrame(headers)
	out = append(out, BuildDataFrame(body)...)
	return out
}
