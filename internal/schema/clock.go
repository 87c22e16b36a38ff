package schema

import (
	"bytes"
	"io"
	"time"
)

// nowUnixForValidation is a seam so tests can pin "now" for refund-window and
// expiry checks without sleeping or racing the wall clock.
var nowUnixForValidation = func() int64 { return time.Now().Unix() }

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
