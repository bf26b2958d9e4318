package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/oarkflow/sendlist/internal/message"
)

// Writer prints messages in MIME format instead of delivering them.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes msg on its own lines, followed by a separator line.
func (t *Writer) Send(_ context.Context, msg *message.Message) error {
	raw, err := msg.Raw()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.w, "\n%s\n-----", raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close is a no-op.
func (t *Writer) Close() error {
	return nil
}
