package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	frameData   byte = 'd'
	frameStatus byte = 's'

	maxFrame = 64 << 10
)

const (
	statusOK         = 0
	statusFailed     = 1
	statusBadRequest = 2
)

type request struct {
	Args []string `json:"args"`
}

type status struct {
	Code  int    `json:"status"`
	Error string `json:"error,omitempty"`
}

func writeFrame(w io.Writer, kind byte, payload []byte) error {
	var hdr [5]byte
	hdr[0] = kind
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeStatus(w io.Writer, st status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return writeFrame(w, frameStatus, payload)
}

// frameWriter wraps everything written into data frames
type frameWriter struct {
	w io.Writer
}

func (f frameWriter) Write(p []byte) (int, error) {
	var n int
	for len(p) > 0 {
		chunk := p[:min(len(p), maxFrame)]
		if err := writeFrame(f.w, frameData, chunk); err != nil {
			return n, err
		}
		n += len(chunk)
		p = p[len(chunk):]
	}
	return n, nil
}

// readFrames copies data frames to w until the status frame arrives.
func readFrames(r io.Reader, w io.Writer) error {
	var hdr [5]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed before status: %w", io.ErrUnexpectedEOF)
			}
			return err
		}
		size := binary.BigEndian.Uint32(hdr[1:])
		if size > maxFrame {
			return fmt.Errorf("frame too big: %d bytes", size)
		}

		switch hdr[0] {
		case frameData:
			if _, err := io.CopyN(w, r, int64(size)); err != nil {
				return fmt.Errorf("copying dump output: %w", err)
			}
		case frameStatus:
			payload := make([]byte, size)
			if _, err := io.ReadFull(r, payload); err != nil {
				return fmt.Errorf("reading status: %w", err)
			}
			var st status
			if err := json.Unmarshal(payload, &st); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}
			if st.Code != statusOK {
				return &CallError{Status: st.Code, Message: st.Error}
			}
			return nil
		default:
			return fmt.Errorf("unknown frame type %q", hdr[0])
		}
	}
}
