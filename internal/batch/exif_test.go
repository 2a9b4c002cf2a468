package batch

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exifJPEG encodes a small JPEG carrying an IFD0 DateTime tag and, when
// original is set, an Exif sub-IFD with DateTimeOriginal.
func exifJPEG(t *testing.T, dateTime, original string) []byte {
	t.Helper()

	le := binary.LittleEndian
	dtValue := append([]byte(dateTime), 0)
	origValue := append([]byte(original), 0)

	entries := uint16(1)
	if original != "" {
		entries = 2
	}
	ifd0End := uint32(8 + 2 + 12*int(entries) + 4)
	subIFD := ifd0End + uint32(len(dtValue))

	var tiff bytes.Buffer
	tiff.WriteString("II*\x00")
	_ = binary.Write(&tiff, le, uint32(8)) // IFD0 offset
	_ = binary.Write(&tiff, le, entries)
	_ = binary.Write(&tiff, le, uint16(0x0132)) // DateTime
	_ = binary.Write(&tiff, le, uint16(2))      // ASCII
	_ = binary.Write(&tiff, le, uint32(len(dtValue)))
	_ = binary.Write(&tiff, le, ifd0End)
	if original != "" {
		_ = binary.Write(&tiff, le, uint16(0x8769)) // Exif IFD pointer
		_ = binary.Write(&tiff, le, uint16(4))      // LONG
		_ = binary.Write(&tiff, le, uint32(1))
		_ = binary.Write(&tiff, le, subIFD)
	}
	_ = binary.Write(&tiff, le, uint32(0)) // no next IFD
	tiff.Write(dtValue)
	if original != "" {
		_ = binary.Write(&tiff, le, uint16(1))
		_ = binary.Write(&tiff, le, uint16(0x9003)) // DateTimeOriginal
		_ = binary.Write(&tiff, le, uint16(2))
		_ = binary.Write(&tiff, le, uint32(len(origValue)))
		_ = binary.Write(&tiff, le, subIFD+2+12+4)
		_ = binary.Write(&tiff, le, uint32(0))
		tiff.Write(origValue)
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var img bytes.Buffer
	require.NoError(t, jpeg.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	encoded := img.Bytes()

	var out bytes.Buffer
	out.Write(encoded[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(encoded[2:])
	return out.Bytes()
}

func TestTakenAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IMG_0001.jpg")
	require.NoError(t, os.WriteFile(path, exifJPEG(t, "2024:05:17 08:30:00", ""), 0o600))

	taken, ok := TakenAt(path)
	require.True(t, ok)
	assert.Equal(t, "2024:05:17 08:30:00", taken)
	assert.Equal(t, "2024:05:17 08:30:00", takenAtOrDefault(path))
}

func TestTakenAt_PrefersDateTimeOverOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IMG_0002.jpg")
	require.NoError(t, os.WriteFile(path, exifJPEG(t, "2024:06:01 12:00:00", "2024:05:31 07:45:10"), 0o600))

	taken, ok := TakenAt(path)
	require.True(t, ok)
	assert.Equal(t, "2024:06:01 12:00:00", taken)
}

func TestTakenAt_NoEXIF(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteMeterPhoto(t, dir, "plain.png", testutil.DefaultMeterPhotoConfig())

	_, ok := TakenAt(path)
	assert.False(t, ok)
	assert.Equal(t, NoEXIF, takenAtOrDefault(path))
	assert.Equal(t, NoEXIF, takenAtOrDefault(filepath.Join(dir, "missing.jpg")))
}
