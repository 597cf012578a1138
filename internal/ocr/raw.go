package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawOutput is what a recognition engine returns for one image before normalization.
// It is a closed set of shapes: Columnar, Records and Unparsed.
type RawOutput interface {
	rawOutput()
}

// Columnar is the dictionary shape: parallel rec_texts / rec_scores / rec_polys (or rec_boxes) lists
type Columnar struct {
	Texts  []string
	Scores []float64
	Polys  [][]Point
}

// Records is the list shape: one record per detection
type Records []Record

// Record is one detection of the list shape
type Record struct {
	Text  string
	Score float64
	Poly  []Point
}

// Unparsed carries an engine payload that matched neither shape.
// It normalizes to an empty item list.
type Unparsed struct {
	Reason string
}

func (Columnar) rawOutput() {}
func (Records) rawOutput()  {}
func (Unparsed) rawOutput() {}

// ParseRaw decodes a JSON engine payload into one of the RawOutput shapes.
// Accepted layouts:
//
//	{"rec_texts": [...], "rec_scores": [...], "rec_polys": [...]}   (also wrapped in "res" or a one-page list)
//	[[poly, [text, score]], ...]
//	[{"text"|"transcription"|"rec_text": ..., "score": ..., "points"|"poly"|"dt_polys": ...}, ...]
//
// ParseRaw never fails; anything else becomes Unparsed.
func ParseRaw(data []byte) RawOutput {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Records{}
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Unparsed{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	return parseValue(doc)
}

func parseValue(doc interface{}) RawOutput {
	switch v := doc.(type) {
	case nil:
		return Records{}
	case map[string]interface{}:
		if inner, ok := v["res"]; ok {
			return parseValue(inner)
		}
		if inner, ok := v["result"]; ok {
			return parseValue(inner)
		}
		if _, ok := v["rec_texts"]; ok {
			return parseColumnar(v)
		}
		for _, key := range []string{"results", "records", "words", "items"} {
			if list, ok := v[key].([]interface{}); ok {
				return parseRecords(list)
			}
		}
		return Unparsed{Reason: "object without rec_texts or a record list"}
	case []interface{}:
		if len(v) == 0 {
			return Records{}
		}
		// a list of pages: keep the first page
		if page, ok := v[0].(map[string]interface{}); ok {
			if _, hasRes := page["res"]; hasRes {
				return parseValue(page)
			}
			if _, hasTexts := page["rec_texts"]; hasTexts {
				return parseColumnar(page)
			}
		}
		// paddle wraps list-shaped output in one more list per page
		if inner, ok := v[0].([]interface{}); ok && len(v) == 1 && len(inner) > 0 && isRecordTuple(inner[0]) {
			return parseRecords(inner)
		}
		return parseRecords(v)
	default:
		return Unparsed{Reason: fmt.Sprintf("unexpected top-level %T", doc)}
	}
}

func parseColumnar(m map[string]interface{}) RawOutput {
	texts, _ := m["rec_texts"].([]interface{})
	scores, _ := m["rec_scores"].([]interface{})

	polys, _ := m["rec_polys"].([]interface{})
	if len(polys) == 0 {
		polys, _ = m["rec_boxes"].([]interface{})
	}
	if len(polys) == 0 {
		polys, _ = m["dt_polys"].([]interface{})
	}

	out := Columnar{
		Texts:  make([]string, 0, len(texts)),
		Scores: make([]float64, 0, len(scores)),
		Polys:  make([][]Point, 0, len(polys)),
	}
	for _, t := range texts {
		s, _ := t.(string)
		out.Texts = append(out.Texts, s)
	}
	for _, s := range scores {
		f, _ := toFloat(s)
		out.Scores = append(out.Scores, f)
	}
	for _, p := range polys {
		out.Polys = append(out.Polys, toPolygon(p))
	}
	return out
}

func parseRecords(list []interface{}) RawOutput {
	out := make(Records, 0, len(list))
	for _, entry := range list {
		if rec, ok := parseRecord(entry); ok {
			out = append(out, rec)
		}
	}
	return out
}

// isRecordTuple reports whether v looks like [poly, [text, score]]
func isRecordTuple(v interface{}) bool {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) != 2 {
		return false
	}
	pair, ok := tuple[1].([]interface{})
	if !ok || len(pair) == 0 {
		return false
	}
	_, isText := pair[0].(string)
	return isText
}

func parseRecord(entry interface{}) (Record, bool) {
	switch v := entry.(type) {
	case []interface{}:
		if !isRecordTuple(v) {
			return Record{}, false
		}
		pair := v[1].([]interface{})
		rec := Record{Text: pair[0].(string), Poly: toPolygon(v[0])}
		if len(pair) > 1 {
			rec.Score, _ = toFloat(pair[1])
		}
		return rec, true

	case map[string]interface{}:
		text, ok := firstString(v, "text", "transcription", "rec_text")
		if !ok {
			return Record{}, false
		}
		rec := Record{Text: text}
		for _, key := range []string{"score", "confidence", "rec_score"} {
			if s, ok := toFloat(v[key]); ok {
				rec.Score = s
				break
			}
		}
		for _, key := range []string{"points", "poly", "dt_polys", "box"} {
			if raw, ok := v[key]; ok {
				rec.Poly = toPolygon(raw)
				break
			}
		}
		// bbox is [x, y, width, height]
		if rec.Poly == nil {
			if box := toPolygon(v["bbox"]); len(box) == 4 {
				rec.Poly = rectToBox(box[0].X, box[0].Y, box[0].X+box[1].X, box[0].Y+box[2].Y)
			}
		}
		return rec, true
	}
	return Record{}, false
}

func firstString(m map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

// toPolygon accepts [[x,y],...], [{"x":..,"y":..},...] or a flat [x1,y1,x2,y2] box
func toPolygon(v interface{}) []Point {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}

	if _, flat := toFloat(list[0]); flat {
		if len(list) != 4 {
			return nil
		}
		var c [4]float64
		for i := range c {
			c[i], _ = toFloat(list[i])
		}
		return rectToBox(c[0], c[1], c[2], c[3])
	}

	poly := make([]Point, 0, len(list))
	for _, corner := range list {
		switch p := corner.(type) {
		case []interface{}:
			if len(p) < 2 {
				continue
			}
			x, _ := toFloat(p[0])
			y, _ := toFloat(p[1])
			poly = append(poly, Point{X: x, Y: y})
		case map[string]interface{}:
			x, _ := toFloat(p["x"])
			y, _ := toFloat(p["y"])
			poly = append(poly, Point{X: x, Y: y})
		}
	}
	return poly
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
