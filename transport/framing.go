package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	goerrors "github.com/goliatone/go-errors"
)

const DefaultMaxFrameBytes = 1 << 20

// errFrameTooLarge marks a frame that hit the size limit before it was
// complete.
var errFrameTooLarge = errors.New("transport: frame exceeds size limit")

// frameDecMode only reads raw CBOR items. Frames are opaque here and decoded
// by the core frame codec.
var frameDecMode, _ = cbor.DecOptions{}.DecMode()

// readFrame reads exactly one CBOR data item from r. CBOR is self-delimiting,
// so no length prefix is needed. The limit bounds a single frame, and the
// peer never sends ahead of a pending reply, so a fresh decoder per frame
// cannot swallow bytes of the next one.
func readFrame(r io.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	limited := &io.LimitedReader{R: r, N: int64(maxBytes) + 1}
	var raw cbor.RawMessage
	if err := frameDecMode.NewDecoder(limited).Decode(&raw); err != nil {
		if limited.N <= 0 {
			return nil, errFrameTooLarge
		}
		return nil, err
	}
	if len(raw) > maxBytes {
		return nil, errFrameTooLarge
	}
	return []byte(raw), nil
}

func writeFrame(w io.Writer, frame []byte, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	if len(frame) == 0 {
		return transportError("transport: refusing to write empty frame", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if len(frame) > maxBytes {
		return transportError(
			fmt.Sprintf("transport: frame of %d bytes exceeds limit %d", len(frame), maxBytes),
			goerrors.CategoryBadInput,
			http.StatusRequestEntityTooLarge,
			map[string]any{"frame_bytes": len(frame), "max_frame_bytes": maxBytes},
		)
	}
	_, err := w.Write(frame)
	return err
}
