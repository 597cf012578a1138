package textline

import (
	"math"
	"reflect"
	"testing"

	"github.com/platinummonkey/slipguard/internal/ocr"
)

func item(text string, score, x, y float64) ocr.Item {
	return ocr.Item{Text: text, Score: score, X: x, Y: y}
}

func TestMerge(t *testing.T) {
	items := []ocr.Item{
		item("ใจดี", 0.8, 200, 52),
		item("ธนาคารกสิกรไทย", 0.9, 50, 10),
		item("สมชาย", 0.6, 100, 48),
		item("123-4-56789-0", 1.0, 60, 100),
	}

	lines := Merge(items, 15)

	want := []string{"ธนาคารกสิกรไทย", "สมชาย ใจดี", "123-4-56789-0"}
	if got := Texts(lines); !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge() = %v, want %v", got, want)
	}
	if math.Abs(lines[1].Score-0.7) > 1e-9 {
		t.Errorf("line score = %v, want 0.7", lines[1].Score)
	}
	if len(lines[1].Items) != 2 || lines[1].Items[0].Text != "สมชาย" {
		t.Errorf("line items = %v", lines[1].Items)
	}

	// input order is untouched
	if items[0].Text != "ใจดี" {
		t.Error("Merge() modified its input")
	}
}

func TestMerge_ComparesAgainstLastAddedItem(t *testing.T) {
	// each step is within the threshold, the total drift is not
	drift := []ocr.Item{
		item("a", 1, 0, 0),
		item("b", 1, 10, 12),
		item("c", 1, 20, 24),
		item("d", 1, 30, 36),
	}
	if lines := Merge(drift, 15); len(lines) != 1 || lines[0].Text != "a b c d" {
		t.Errorf("gradual drift: Merge() = %v, want one line", Texts(lines))
	}

	jump := []ocr.Item{
		item("a", 1, 0, 0),
		item("b", 1, 0, 16),
	}
	if lines := Merge(jump, 15); len(lines) != 2 {
		t.Errorf("jump: Merge() = %v, want two lines", Texts(lines))
	}

	edge := []ocr.Item{item("a", 1, 0, 0), item("b", 1, 5, 15)}
	if lines := Merge(edge, 15); len(lines) != 1 {
		t.Errorf("exactly at threshold: Merge() = %v, want one line", Texts(lines))
	}
}

func TestMerge_Ordering(t *testing.T) {
	items := []ocr.Item{
		item("r3c2", 1, 90, 200), item("r1c1", 1, 10, 0), item("r2c2", 1, 80, 101),
		item("r1c3", 1, 300, 3), item("r3c1", 1, 5, 198), item("r2c1", 1, 1, 99),
		item("r1c2", 1, 150, 1),
	}

	lines := Merge(items, 15)
	want := []string{"r1c1 r1c2 r1c3", "r2c1 r2c2", "r3c1 r3c2"}
	if got := Texts(lines); !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge() = %v, want %v", got, want)
	}

	minY := func(l Line) float64 {
		m := math.Inf(1)
		for _, it := range l.Items {
			m = math.Min(m, it.Y)
		}
		return m
	}
	for i := 1; i < len(lines); i++ {
		if minY(lines[i-1]) >= minY(lines[i]) {
			t.Errorf("line %d starts below line %d", i-1, i)
		}
		for j := 1; j < len(lines[i].Items); j++ {
			if lines[i].Items[j-1].X > lines[i].Items[j].X {
				t.Errorf("line %d items not left to right", i)
			}
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	if lines := Merge(nil, 15); lines != nil {
		t.Errorf("Merge(nil) = %v, want nil", lines)
	}
}

func TestDedupeTokens(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		threshold float64
		want      string
	}{
		{"exact repeat", "สมชาย สมชาย ใจดี", LineDedupeThreshold, "สมชาย ใจดี"},
		{"case-insensitive", "Transfer transfer ok", LineDedupeThreshold, "Transfer ok"},
		{"outside window", "a1b2c3 xxx yyy a1b2c3", LineDedupeThreshold, "a1b2c3 xxx yyy a1b2c3"},
		{"near duplicate at name threshold", "somchaii somchai jaidee", NameDedupeThreshold, "somchaii jaidee"},
		{"distinct tokens", "โอนเงิน สำเร็จ", LineDedupeThreshold, "โอนเงิน สำเร็จ"},
		{"blank", "   ", LineDedupeThreshold, "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeTokens(tt.line, tt.threshold, DedupeWindow); got != tt.want {
				t.Errorf("DedupeTokens(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestMerge_RecordsWithoutPolygons(t *testing.T) {
	items := ocr.Normalize(ocr.Records{
		{Text: "ธนาคารกสิกรไทย", Score: 0.9},
		{Text: "นาย สมชาย ใจดี", Score: 0.9},
		{Text: "123-4-56789-0", Score: 0.9},
	})

	got := Texts(Merge(items, DefaultThreshold))
	want := []string{"ธนาคารกสิกรไทย", "นาย สมชาย ใจดี", "123-4-56789-0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want one line per record %v", got, want)
	}
}
