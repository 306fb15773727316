package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const separatorWidth = 60

// WriteReport prints the human-readable outcome of one diagnostic exchange.
// A transport failure renders as a single Error line after the banner; the
// process is not expected to treat that as its own failure.
func WriteReport(w io.Writer, url string, ex *Exchange, err error) {
	fmt.Fprintf(w, "Testing: %s\n", url)
	fmt.Fprintln(w, strings.Repeat("-", separatorWidth))

	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Status Code: %d\n", ex.StatusCode)
	ct := ex.ContentType()
	if ct == "" {
		ct = "n/a"
	}
	fmt.Fprintf(w, "Content-Type: %s\n", ct)

	fmt.Fprintf(w, "\nResponse Headers:\n")
	for _, h := range ex.Headers {
		fmt.Fprintf(w, "  %s: %s\n", h.Name, h.Value)
	}

	fmt.Fprintf(w, "\nResponse Body:\n")
	fmt.Fprintln(w, renderBody(ex.Body))
}

// renderBody pretty-prints a JSON body with two-space indentation, keeping
// the source key order. Anything that fails to parse is returned verbatim;
// a non-JSON body is expected, not an error.
func renderBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return string(body)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
