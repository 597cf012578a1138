package paddle

import "encoding/json"

// File types understood by the serving pipeline
const (
	FileTypePDF   = 0
	FileTypeImage = 1
)

// OCRRequest is the body of POST /ocr
type OCRRequest struct {
	// File is the base64 encoded image
	File     string `json:"file"`
	FileType int    `json:"fileType"`

	UseDocOrientationClassify *bool `json:"useDocOrientationClassify,omitempty"`
	UseDocUnwarping           *bool `json:"useDocUnwarping,omitempty"`
	UseTextlineOrientation    *bool `json:"useTextlineOrientation,omitempty"`

	// Visualize=false stops the server from sending back annotated images
	Visualize *bool `json:"visualize,omitempty"`
}

// Response is the envelope of every serving response
type Response struct {
	LogID     string     `json:"logId"`
	ErrorCode int        `json:"errorCode"`
	ErrorMsg  string     `json:"errorMsg"`
	Result    *OCRResult `json:"result,omitempty"`
}

// OCRResult holds one entry per input page
type OCRResult struct {
	OCRResults []PageResult `json:"ocrResults"`
}

// PageResult is the recognition output of one page.
// PrunedResult is left raw: it carries rec_texts / rec_scores / rec_polys.
type PageResult struct {
	PrunedResult json.RawMessage `json:"prunedResult"`
}
