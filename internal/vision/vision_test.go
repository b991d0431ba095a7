package vision

import (
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/detection"
	"github.com/ayusman/kestrel/testdata"
)

func TestOddKernel(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0}, {1, 0}, {2, 0}, {3, 3}, {4, 5}, {5, 5}, {21, 21},
	}

	for _, tt := range tests {
		if got := OddKernel(tt.in); got != tt.want {
			t.Errorf("OddKernel(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestKernelCache_ReusesKernels(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	c := NewKernelCache()
	defer c.Close()

	a := c.Get(3)
	c.Get(3)
	c.Get(5)
	if len(c.kernels) != 2 {
		t.Errorf("cache holds %d kernels, want 2", len(c.kernels))
	}
	if a.Rows() != 3 || a.Cols() != 3 {
		t.Errorf("kernel size = %dx%d, want 3x3", a.Rows(), a.Cols())
	}
}

func TestExtractBlobs_Methods(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mask := testdata.GrayFrame(100, 100, 0)
	defer mask.Close()
	testdata.FillGrayRect(&mask, image.Rect(10, 10, 30, 30), 255)
	testdata.FillGrayRect(&mask, image.Rect(60, 60, 63, 63), 255)

	filter := BlobFilter{MinArea: 50, MaxArea: 10000}

	for _, method := range []config.BlobMethod{config.BlobContour, config.BlobComponents} {
		t.Run(string(method), func(t *testing.T) {
			blobs := ExtractBlobs(mask, method, filter)
			if len(blobs) != 1 {
				t.Fatalf("got %d blobs, want 1 (small blob must be filtered)", len(blobs))
			}

			b := blobs[0]
			if b.Area < 350 || b.Area > 400 {
				t.Errorf("area = %f, want ~400", b.Area)
			}
			if b.BBox.X != 10 || b.BBox.Y != 10 {
				t.Errorf("bbox origin = (%d,%d), want (10,10)", b.BBox.X, b.BBox.Y)
			}
			if b.Centroid.X < 18 || b.Centroid.X > 21 || b.Centroid.Y < 18 || b.Centroid.Y > 21 {
				t.Errorf("centroid = %v, want ~(19,19)", b.Centroid)
			}
			if len(b.Outline) < 4 {
				t.Errorf("outline has %d points, want >= 4", len(b.Outline))
			}
		})
	}
}

func TestExtractBlobs_RejectsMultiChannel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := testdata.SolidFrame(20, 20, testdata.White)
	defer frame.Close()

	if blobs := ExtractBlobs(frame, config.BlobContour, BlobFilter{MaxArea: 1e9}); blobs != nil {
		t.Errorf("expected nil for a 3-channel input, got %d blobs", len(blobs))
	}
}

func TestMaskedMean_UsesOutlineOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := testdata.SolidFrame(50, 50, testdata.Blue)
	defer frame.Close()
	testdata.FillRect(&frame, image.Rect(20, 20, 30, 30), testdata.Red)

	outline := []image.Point{{21, 21}, {28, 21}, {28, 28}, {21, 28}}
	bbox := detection.BBox{X: 10, Y: 10, W: 30, H: 30}

	mean, ok := MaskedMean(frame, outline, bbox)
	if !ok {
		t.Fatal("MaskedMean returned !ok")
	}
	if mean[2] < 250 || mean[0] > 5 {
		t.Errorf("mean = %v, want pure red inside the outline", mean)
	}

	whole, ok := MaskedMean(frame, nil, bbox)
	if !ok {
		t.Fatal("MaskedMean without outline returned !ok")
	}
	if whole[0] < 100 {
		t.Errorf("whole-box mean = %v, want mostly blue", whole)
	}
}

func TestMeanHue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := testdata.SolidFrame(20, 20, testdata.Green)
	defer frame.Close()

	hue, ok := MeanHue(frame, nil, detection.BBox{W: 20, H: 20})
	if !ok {
		t.Fatal("MeanHue returned !ok")
	}
	if hue < 58 || hue > 62 {
		t.Errorf("hue = %f, want 60 for pure green", hue)
	}

	if _, ok := MeanHue(frame, nil, detection.BBox{X: 100, Y: 100, W: 5, H: 5}); ok {
		t.Error("box outside the frame should not produce a hue")
	}
}

func TestOpenClose_RemovesSpeckles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	c := NewKernelCache()
	defer c.Close()

	mask := testdata.GrayFrame(40, 40, 0)
	defer mask.Close()
	mask.SetUCharAt(5, 5, 255)
	testdata.FillGrayRect(&mask, image.Rect(15, 15, 30, 30), 255)

	OpenClose(&mask, c.Get(3))

	if mask.GetUCharAt(5, 5) != 0 {
		t.Error("isolated pixel should be removed by opening")
	}
	if gocv.CountNonZero(mask) < 150 {
		t.Errorf("square should survive morphology, nonzero = %d", gocv.CountNonZero(mask))
	}
}
