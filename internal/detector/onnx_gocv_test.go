//go:build gocv

package detector

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestInputBlobIsRGB(t *testing.T) {
	tests := []struct {
		name string
		fill color.RGBA
		want [3]float32
	}{
		{"red", color.RGBA{R: 255, A: 255}, [3]float32{1, 0, 0}},
		{"blue", color.RGBA{B: 255, A: 255}, [3]float32{0, 0, 1}},
	}

	const size = 8
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := image.NewRGBA(image.Rect(0, 0, 16, 16))
			draw.Draw(frame, frame.Bounds(), &image.Uniform{C: tt.fill}, image.Point{}, draw.Src)

			blob, err := inputBlob(frame, size)
			if err != nil {
				t.Fatalf("inputBlob: %v", err)
			}
			defer blob.Close()

			data, err := blob.DataPtrFloat32()
			if err != nil {
				t.Fatalf("blob data: %v", err)
			}
			if len(data) != 3*size*size {
				t.Fatalf("blob holds %d values, want %d", len(data), 3*size*size)
			}
			for c := 0; c < 3; c++ {
				if got := data[c*size*size]; got < tt.want[c]-0.01 || got > tt.want[c]+0.01 {
					t.Fatalf("channel %d = %v, want %v", c, got, tt.want[c])
				}
			}
		})
	}
}
