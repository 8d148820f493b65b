package core_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"testing"

	"vision-backend/internal/core"
	"vision-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImage_ShapeAndNormalization(t *testing.T) {
	payload := solidImage(t, color.NRGBA{R: 255, G: 0, B: 128, A: 255}, 640, 480)

	img, err := core.DecodeImage(payload)
	require.NoError(t, err)
	require.Len(t, img.Data, types.ImageTensorSize)
	assert.Equal(t, []int64{1, 3, 224, 224}, img.Shape())

	plane := types.ImageHeight * types.ImageWidth
	for _, idx := range []int{0, plane / 2, plane - 1} {
		assert.InDelta(t, (1.0-0.485)/0.229, img.Data[idx], 0.02)
		assert.InDelta(t, (0.0-0.456)/0.224, img.Data[plane+idx], 0.02)
		assert.InDelta(t, (128.0/255-0.406)/0.225, img.Data[2*plane+idx], 0.02)
	}
}

func TestDecodeImage_Deterministic(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 50, 70))
	for y := 0; y < 70; y++ {
		for x := 0; x < 50; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 3), B: uint8(x ^ y), A: 255})
		}
	}
	payload := encodePNG(t, src)

	first, err := core.DecodeImage(payload)
	require.NoError(t, err)
	second, err := core.DecodeImage(payload)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestDecodeImage_DropsAlphaWithoutPremultiplying(t *testing.T) {
	payload := solidImage(t, color.NRGBA{R: 255, G: 255, B: 255, A: 0}, 8, 8)

	img, err := core.DecodeImage(payload)
	require.NoError(t, err)
	assert.InDelta(t, (1.0-0.485)/0.229, img.Data[0], 0.02)
}

func TestDecodeImage_AcceptsDataURLAndUnpadded(t *testing.T) {
	payload := solidImage(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, 5, 5)
	expected, err := core.DecodeImage(payload)
	require.NoError(t, err)

	fromURL, err := core.DecodeImage("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, expected.Data, fromURL.Data)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	unpadded, err := core.DecodeImage(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, expected.Data, unpadded.Data)
}

func TestDecodeImage_InvalidPayloads(t *testing.T) {
	random := make([]byte, 512)
	_, err := rand.Read(random)
	require.NoError(t, err)

	valid := solidImage(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}, 16, 16)
	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
	}{
		{"random bytes", base64.StdEncoding.EncodeToString(random)},
		{"malformed base64", "not base64 at all!!"},
		{"empty", ""},
		{"truncated png", base64.StdEncoding.EncodeToString(raw[:len(raw)/2])},
		{"text file", base64.StdEncoding.EncodeToString([]byte("hello world"))},
		{"oversized png header", pngWithHeader(30000, 30000)},
		{"zero width png header", pngWithHeader(0, 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := core.DecodeImage(tt.payload)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, core.ErrInvalidImage)
		})
	}
}

func writePNGChunk(buf *bytes.Buffer, kind string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.WriteString(kind)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(data)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	buf.Write(n[:])
}

// pngWithHeader returns a PNG whose header claims the given size but which
// carries almost no pixel data.
func pngWithHeader(width, height uint32) string {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	writePNGChunk(&buf, "IHDR", ihdr)
	writePNGChunk(&buf, "IDAT", make([]byte, 1024))
	writePNGChunk(&buf, "IEND", nil)

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeImage_RejectsOversizedBeforeDecoding(t *testing.T) {
	_, err := core.DecodeImage(pngWithHeader(30000, 30000))
	require.ErrorIs(t, err, core.ErrInvalidImage)
	assert.Contains(t, err.Error(), "30000x30000")
}
