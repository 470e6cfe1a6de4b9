package detector

import "image"

// ONNXOptions tunes the ONNX backend
type ONNXOptions struct {
	InputSize      int     // Square network input, 640 for YOLOv8 exports
	ScoreThreshold float32 // Pre-NMS score floor, well below ConfidenceCutoff
	NMSThreshold   float32 // IoU above which overlapping boxes are suppressed
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.InputSize <= 0 {
		o.InputSize = 640
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = 0.25
	}
	if o.NMSThreshold <= 0 {
		o.NMSThreshold = 0.7
	}
	return o
}

// decodeYOLO reads a channel-major [rows, n] YOLOv8 head where rows is
// 4 box values (cx, cy, w, h) followed by one score per class. Boxes are
// scaled from network space by (sx, sy).
func decodeYOLO(data []float32, rows, n int, sx, sy float32, minScore float32) ([]image.Rectangle, []float32) {
	if rows < 5 || len(data) < rows*n {
		return nil, nil
	}

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < n; i++ {
		best := float32(0)
		for c := 4; c < rows; c++ {
			if v := data[c*n+i]; v > best {
				best = v
			}
		}
		if best < minScore {
			continue
		}

		cx, cy := data[i], data[n+i]
		w, h := data[2*n+i], data[3*n+i]
		x1 := int((cx - w/2) * sx)
		y1 := int((cy - h/2) * sy)
		x2 := int((cx + w/2) * sx)
		y2 := int((cy + h/2) * sy)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, best)
	}
	return boxes, scores
}
