package ocr

// Point is a corner of a detection polygon in image pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Item is one recognized text detection.
// Items are created by Normalize and never modified afterwards.
type Item struct {
	// Text is the recognized text, trimmed
	Text string `json:"text"`

	// Score is the recognition confidence in [0, 1]
	Score float64 `json:"score"`

	// X and Y are the center of the detection polygon
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Box is the detection polygon in corner order
	Box []Point `json:"box"`
}

// NewItem builds an Item with its center computed as the mean of the polygon corners
func NewItem(text string, score float64, box []Point) Item {
	cx, cy := center(box)
	return Item{
		Text:  text,
		Score: clampScore(score),
		X:     cx,
		Y:     cy,
		Box:   box,
	}
}

func center(box []Point) (float64, float64) {
	if len(box) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, p := range box {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(box))
	return sx / n, sy / n
}

// rectToBox expands an axis-aligned [x1, y1, x2, y2] rectangle into four corners
func rectToBox(x1, y1, x2, y2 float64) []Point {
	return []Point{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}

// clampScore keeps scores inside [0, 1]. Engines that report percentages are scaled down.
func clampScore(s float64) float64 {
	if s > 1 && s <= 100 {
		s /= 100
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
