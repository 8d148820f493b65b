package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"vision-backend/internal/core/types"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const maxImagePixels = 25_000_000

var (
	channelMean = [types.ImageChannels]float32{0.485, 0.456, 0.406}
	channelStd  = [types.ImageChannels]float32{0.229, 0.224, 0.225}
)

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ";base64,"); idx >= 0 {
			payload = payload[idx+len(";base64,"):]
		}
	}

	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

// toRGB drops the alpha channel without premultiplying it into the color values.
func toRGB(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	rgb := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 255
			rgb.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, c)
		}
	}
	return rgb
}

// DecodeImage turns a base64 encoded image into a normalized 3x224x224 tensor.
func DecodeImage(payload string) (*types.DecodedImage, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64 payload: %v", ErrInvalidImage, err)
	}

	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read image header: %v", ErrInvalidImage, err)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}
	// Checked before decoding, the decoder allocates the full frame up front.
	if int64(config.Width)*int64(config.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: image is %dx%d, limit is %d pixels", ErrInvalidImage, config.Width, config.Height, maxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode image: %v", ErrInvalidImage, err)
	}

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}

	resized := resize.Resize(types.ImageWidth, types.ImageHeight, toRGB(img), resize.Bilinear)
	bounds := resized.Bounds()

	const plane = types.ImageHeight * types.ImageWidth
	tensor := make([]float32, types.ImageTensorSize)

	for y := 0; y < types.ImageHeight; y++ {
		for x := 0; x < types.ImageWidth; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*types.ImageWidth + x
			tensor[pixelIndex] = normalize(r, 0)
			tensor[plane+pixelIndex] = normalize(g, 1)
			tensor[2*plane+pixelIndex] = normalize(b, 2)
		}
	}

	return &types.DecodedImage{Data: tensor}, nil
}

func normalize(v uint32, channel int) float32 {
	return (float32(v>>8)/255.0 - channelMean[channel]) / channelStd[channel]
}
