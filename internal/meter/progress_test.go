package meter

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "Reading: ").WithUpdateInterval(time.Nanosecond)

	cb.OnStart(2)
	cb.OnProgress(1, 2)
	cb.OnError(1, errors.New("broken"))
	cb.OnProgress(2, 2)
	cb.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "Found 2 image(s)")
	assert.Contains(t, out, "Error at image 1: broken")
	assert.Contains(t, out, "Completed")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cb := NewLogProgressCallback(logger, 2)

	cb.OnStart(3)
	for i := 1; i <= 3; i++ {
		cb.OnProgress(i, 3)
	}
	cb.OnError(2, errors.New("broken"))
	cb.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "total=3")
	assert.Equal(t, 2, strings.Count(out, "msg=progress"), "logged at 2 and at the end")
	assert.Contains(t, out, "error=broken")
	assert.Contains(t, out, "reading complete")
}
