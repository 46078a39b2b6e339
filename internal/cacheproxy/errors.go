package cacheproxy

import (
	"fmt"
	"io"
	"time"
)

// errorBodies holds everything needed to reproduce one fixed error
// response byte-for-byte: reason is the status-line reason phrase;
// h1 is the text inside the body's <H1>, which for 400 carries the
// source's "Bad Rqeuest" misspelling while the <TITLE> stays correctly
// spelled — exactly as spec.md §6.3 gives it.
var errorBodies = map[int]struct {
	reason string
	h1     string
}{
	400: {"Bad Request", "400 Bad Rqeuest"},
	403: {"Forbidden", "403 Forbidden"},
	404: {"Not Found", "404 Not Found"},
	500: {"Internal Server Error", "500 Internal Server Error"},
	501: {"Not Implemented", "501 Not Implemented"},
	505: {"HTTP Version Not Supported", "505 HTTP Version Not Supported"},
}

// writeErrorResponse writes one of the fixed error responses to w. An
// unrecognized code falls back to 500, since the Request Handler must
// never try to emit a status line spec.md doesn't define.
func writeErrorResponse(w io.Writer, code int) error {
	entry, ok := errorBodies[code]
	if !ok {
		code = 500
		entry = errorBodies[500]
	}

	body := fmt.Sprintf("<HTML><HEAD><TITLE>%d %s</TITLE></HEAD>\n<BODY><H1>%s</H1>\n</BODY></HTML>",
		code, entry.reason, entry.h1)

	_, err := fmt.Fprintf(w,
		"HTTP/1.1 %d %s\r\n"+
			"Date: %s\r\n"+
			"Server: VaibhavN/14785\r\n"+
			"Content-Type: text/html\r\n"+
			"Content-Length: %d\r\n"+
			"Connection: keep-alive\r\n"+
			"\r\n"+
			"%s",
		code, entry.reason,
		time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"),
		len(body),
		body,
	)
	return err
}
