package ocr

import (
	"testing"
)

func TestParseRaw_Columnar(t *testing.T) {
	payload := `{
		"rec_texts": ["ธนาคารกสิกรไทย", "123-4-56789-0"],
		"rec_scores": [0.98, 0.87],
		"rec_polys": [
			[[10, 10], [110, 10], [110, 30], [10, 30]],
			[[10, 50], [130, 50], [130, 70], [10, 70]]
		]
	}`

	raw := ParseRaw([]byte(payload))
	col, ok := raw.(Columnar)
	if !ok {
		t.Fatalf("ParseRaw() = %T, want Columnar", raw)
	}
	if len(col.Texts) != 2 || col.Texts[0] != "ธนาคารกสิกรไทย" {
		t.Errorf("Texts = %v", col.Texts)
	}
	if len(col.Scores) != 2 || col.Scores[1] != 0.87 {
		t.Errorf("Scores = %v", col.Scores)
	}
	if len(col.Polys) != 2 || len(col.Polys[1]) != 4 || col.Polys[1][2] != (Point{130, 70}) {
		t.Errorf("Polys = %v", col.Polys)
	}
}

func TestParseRaw_ColumnarWrappedAndBoxes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"res wrapper", `{"res": {"rec_texts": ["a"], "rec_scores": [0.5], "rec_polys": [[[0,0],[2,0],[2,2],[0,2]]]}}`},
		{"page list", `[{"rec_texts": ["a"], "rec_scores": [0.5], "rec_polys": [[[0,0],[2,0],[2,2],[0,2]]]}]`},
		{"page list with res", `[{"res": {"rec_texts": ["a"], "rec_scores": [0.5], "rec_polys": [[[0,0],[2,0],[2,2],[0,2]]]}}]`},
		{"rec_boxes fallback", `{"rec_texts": ["a"], "rec_scores": [0.5], "rec_boxes": [[0, 0, 2, 2]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, ok := ParseRaw([]byte(tt.payload)).(Columnar)
			if !ok {
				t.Fatalf("ParseRaw() did not return Columnar")
			}
			items := Normalize(col)
			if len(items) != 1 {
				t.Fatalf("Normalize() = %d items, want 1", len(items))
			}
			if items[0].X != 1 || items[0].Y != 1 {
				t.Errorf("center = (%v, %v), want (1, 1)", items[0].X, items[0].Y)
			}
		})
	}
}

func TestParseRaw_Records(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantText []string
		wantY    float64
	}{
		{
			name:     "tuple list",
			payload:  `[[[[0,10],[40,10],[40,30],[0,30]], ["นาย สมชาย", 0.91]], [[[0,50],[40,50],[40,70],[0,70]], ["SCB", 0.8]]]`,
			wantText: []string{"นาย สมชาย", "SCB"},
			wantY:    20,
		},
		{
			name:     "tuple list wrapped in a page",
			payload:  `[[[[[0,10],[40,10],[40,30],[0,30]], ["นาย สมชาย", 0.91]]]]`,
			wantText: []string{"นาย สมชาย"},
			wantY:    20,
		},
		{
			name:     "object list with points",
			payload:  `[{"text": "โอนเงินสำเร็จ", "score": 0.99, "points": [[0,10],[40,10],[40,30],[0,30]]}]`,
			wantText: []string{"โอนเงินสำเร็จ"},
			wantY:    20,
		},
		{
			name:     "records key with transcription",
			payload:  `{"records": [{"transcription": "ไทยพาณิชย์", "confidence": "0.7", "poly": [{"x":0,"y":10},{"x":4,"y":10},{"x":4,"y":30},{"x":0,"y":30}]}]}`,
			wantText: []string{"ไทยพาณิชย์"},
			wantY:    20,
		},
		{
			name:     "bbox is x y width height",
			payload:  `{"words": [{"text": "KBANK", "confidence": 0.9, "bbox": [0, 10, 40, 20]}]}`,
			wantText: []string{"KBANK"},
			wantY:    20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := ParseRaw([]byte(tt.payload))
			recs, ok := raw.(Records)
			if !ok {
				t.Fatalf("ParseRaw() = %T (%v), want Records", raw, raw)
			}
			if len(recs) != len(tt.wantText) {
				t.Fatalf("len = %d, want %d", len(recs), len(tt.wantText))
			}
			for i, want := range tt.wantText {
				if recs[i].Text != want {
					t.Errorf("record %d text = %q, want %q", i, recs[i].Text, want)
				}
			}
			if _, y := center(recs[0].Poly); y != tt.wantY {
				t.Errorf("first center y = %v, want %v", y, tt.wantY)
			}
		})
	}
}

func TestParseRaw_EmptyAndUnparsed(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantUnparsed bool
	}{
		{"empty body", ``, false},
		{"null", `null`, false},
		{"empty list", `[]`, false},
		{"not json", `sorry, I cannot read this image`, true},
		{"scalar", `42`, true},
		{"unknown object", `{"status": "ok"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := ParseRaw([]byte(tt.payload))
			_, unparsed := raw.(Unparsed)
			if unparsed != tt.wantUnparsed {
				t.Errorf("ParseRaw(%q) = %T, unparsed want %v", tt.payload, raw, tt.wantUnparsed)
			}
			if items := Normalize(raw); len(items) != 0 {
				t.Errorf("Normalize() = %v, want no items", items)
			}
		})
	}
}
