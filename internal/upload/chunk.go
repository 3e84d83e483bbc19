// Package upload streams raw PCM to a collection server over HTTP/1.1
// chunked transfer encoding, framing each chunk by hand so audio bytes go
// on the wire as they are captured rather than after the body is complete.
package upload

import "strconv"

// TerminalMarker closes a chunked body: a zero-length chunk followed by the
// final empty line.
const TerminalMarker = "0\r\n\r\n"

// AppendChunk appends one chunk frame for payload to dst and returns the
// extended slice: the payload length in lowercase hex, CRLF, the payload
// bytes, CRLF. A zero-length payload produces the terminal marker, so
// callers streaming data must suppress empty payloads themselves.
func AppendChunk(dst, payload []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(len(payload)), 16)
	dst = append(dst, '\r', '\n')
	dst = append(dst, payload...)
	return append(dst, '\r', '\n')
}

// EncodeChunk frames payload as a standalone chunk.
func EncodeChunk(payload []byte) []byte {
	return AppendChunk(make([]byte, 0, len(payload)+16), payload)
}
