package ocr

import (
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/platinummonkey/slipguard/internal/logger"
)

var (
	bboxPattern  = regexp.MustCompile(`bbox\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)`)
	wconfPattern = regexp.MustCompile(`x_wconf\s+(\d+)`)
)

// TesseractEngine runs a local Tesseract through gosseract and reports one record per hOCR line
type TesseractEngine struct {
	logger    *logger.Logger
	languages []string
}

// NewTesseractEngine creates a Tesseract engine (default languages: tha, eng)
func NewTesseractEngine(languages []string, log *logger.Logger) *TesseractEngine {
	if log == nil {
		log = logger.Get()
	}
	if len(languages) == 0 {
		languages = []string{"tha", "eng"}
	}
	return &TesseractEngine{logger: log, languages: languages}
}

// Recognize performs OCR on the image. Tesseract is not interruptible, ctx is only checked up front.
func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image) (RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image data: %w", err)
	}

	hocr, err := client.HOCRText()
	if err != nil {
		return nil, fmt.Errorf("failed to get HOCR text: %w", err)
	}

	records, err := parseHOCR(hocr)
	if err != nil {
		return Unparsed{Reason: err.Error()}, nil
	}

	t.logger.WithFields("lines", len(records), "languages", strings.Join(t.languages, "+")).Debug("Tesseract recognition completed")
	return records, nil
}

// HealthCheck verifies that the Tesseract library is linked and reports a version
func (t *TesseractEngine) HealthCheck(ctx context.Context) error {
	if gosseract.Version() == "" {
		return fmt.Errorf("tesseract is not available")
	}
	return nil
}

// Name returns the provider name
func (t *TesseractEngine) Name() string {
	return string(ProviderTesseract)
}

// parseHOCR turns hOCR XML into line records: words joined by a space,
// score the mean word confidence, polygon the line bbox.
func parseHOCR(hocr string) (Records, error) {
	var page hocrPage
	if err := xml.Unmarshal([]byte(hocr), &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal HOCR XML: %w", err)
	}

	records := Records{}
	for _, pageDiv := range page.Body.Pages {
		for _, area := range pageDiv.Areas {
			for _, par := range area.Pars {
				for _, line := range par.Lines {
					if rec, ok := lineRecord(line); ok {
						records = append(records, rec)
					}
				}
			}
		}
	}
	return records, nil
}

func lineRecord(line hocrLine) (Record, bool) {
	words := make([]string, 0, len(line.Words))
	var confSum float64
	for _, w := range line.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		words = append(words, text)
		confSum += extractConfidence(w.Title)
	}
	if len(words) == 0 {
		return Record{}, false
	}

	rec := Record{
		Text:  strings.Join(words, " "),
		Score: confSum / float64(len(words)) / 100,
	}
	if bbox := extractBBox(line.Title); bbox != nil {
		rec.Poly = rectToBox(float64(bbox[0]), float64(bbox[1]), float64(bbox[2]), float64(bbox[3]))
	}
	return rec, true
}

// extractBBox reads "bbox x0 y0 x1 y1" from an hOCR title attribute
func extractBBox(title string) []int {
	matches := bboxPattern.FindStringSubmatch(title)
	if len(matches) != 5 {
		return nil
	}

	bbox := make([]int, 4)
	for i := 0; i < 4; i++ {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return nil
		}
		bbox[i] = val
	}
	return bbox
}

// extractConfidence reads "x_wconf 95" from an hOCR title attribute
func extractConfidence(title string) float64 {
	matches := wconfPattern.FindStringSubmatch(title)
	if len(matches) != 2 {
		return 0
	}
	conf, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}
	return conf
}

type hocrPage struct {
	XMLName xml.Name `xml:"html"`
	Body    hocrBody `xml:"body"`
}

type hocrBody struct {
	Pages []hocrPageDiv `xml:"div"`
}

type hocrPageDiv struct {
	Title string     `xml:"title,attr"`
	Areas []hocrArea `xml:"div"`
}

type hocrArea struct {
	Pars []hocrPar `xml:"p"`
}

type hocrPar struct {
	Lines []hocrLine `xml:"span"`
}

type hocrLine struct {
	Title string     `xml:"title,attr"`
	Words []hocrWord `xml:"span"`
}

type hocrWord struct {
	Title string `xml:"title,attr"`
	Text  string `xml:",chardata"`
}
