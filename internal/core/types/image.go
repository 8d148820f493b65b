package types

const (
	ImageChannels = 3
	ImageHeight   = 224
	ImageWidth    = 224

	ImageTensorSize = ImageChannels * ImageHeight * ImageWidth
)

// DecodedImage is a normalized CHW float tensor of shape 3x224x224.
type DecodedImage struct {
	Data []float32
}

func (img *DecodedImage) Shape() []int64 {
	return []int64{1, ImageChannels, ImageHeight, ImageWidth}
}

// RawInferenceOutput holds the unnormalized class scores of a single forward pass.
type RawInferenceOutput struct {
	Shape  []int64
	Scores []float32
}

type RankedResult struct {
	Probabilities []float64
	Labels        []string
}
