package core_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vision-backend/internal/core"
	"vision-backend/internal/core/types"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func solidImage(t *testing.T, c color.NRGBA, w, h int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return encodePNG(t, img)
}

const numTestClasses = 10

// redBucket recovers the red value of the first pixel from the normalized
// tensor and maps it onto one of numTestClasses buckets of width 26.
func redBucket(img *types.DecodedImage) int {
	red := (float64(img.Data[0])*0.229 + 0.485) * 255
	return min(int(red+0.5)/26, numTestClasses-1)
}

// bucketImage returns an image whose red channel lands in the given bucket.
func bucketImage(t *testing.T, bucket int) string {
	return solidImage(t, color.NRGBA{R: uint8(26*bucket + 13), G: 80, B: 160, A: 255}, 32, 24)
}

type bucketUnit struct {
	mu       sync.Mutex
	calls    int
	failOn   int
	labels   []string
	scoreLen int
	jitter   bool
}

func (u *bucketUnit) Apply(img *types.DecodedImage) (*types.RawInferenceOutput, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()

	if u.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}

	bucket := redBucket(img)
	if bucket == u.failOn {
		return nil, fmt.Errorf("forced failure for bucket %d", bucket)
	}

	n := numTestClasses
	if u.scoreLen != 0 {
		n = u.scoreLen
	}
	scores := make([]float32, n)
	for i := range scores {
		scores[i] = float32(-i) * 0.1
	}
	if bucket < n {
		scores[bucket] = 10
	}
	return &types.RawInferenceOutput{Shape: []int64{1, int64(n)}, Scores: scores}, nil
}

func (u *bucketUnit) Release() {}

func (u *bucketUnit) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type labeledUnit struct {
	*bucketUnit
}

func (u *labeledUnit) Labels() []string {
	return u.labels
}

type panicUnit struct{}

func (panicUnit) Apply(*types.DecodedImage) (*types.RawInferenceOutput, error) {
	panic("corrupted weights")
}

func (panicUnit) Release() {}

type staticProvider struct {
	units    map[string]core.InferenceUnit
	leases   atomic.Int32
	releases atomic.Int32
}

func (p *staticProvider) Resolve(_ context.Context, name string) (core.InferenceUnit, func(), error) {
	unit, ok := p.units[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrModelNotFound, name)
	}
	p.leases.Add(1)
	return unit, func() { p.releases.Add(1) }, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []types.UsageRecord
}

func (s *memorySink) Record(_ context.Context, record types.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *memorySink) Records() []types.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.UsageRecord(nil), s.records...)
}
