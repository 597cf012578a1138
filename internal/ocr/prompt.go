package ocr

import (
	"bytes"
)

// RecognitionPrompt asks a vision model for detections in the list shape ParseRaw understands
const RecognitionPrompt = `You are a text recognition engine for Thai bank transfer slips and chat screenshots.
Read every line of text in the image, Thai and English, exactly as written.
Do not translate, correct spelling, or reformat numbers.
Return ONLY valid JSON with no markdown formatting, no code blocks, no explanation.

Format:
{
  "records": [
    {"text": "line text", "score": 0.95, "points": [[x1, y1], [x2, y2], [x3, y3], [x4, y4]]}
  ]
}

Rules:
- One record per visual line, in reading order
- points are the four corners of the line in pixels from top-left (0,0), clockwise from top-left
- score is your confidence 0.0-1.0, use 0.5 if uncertain
- Keep account numbers with their dashes, e.g. 123-4-56789-0
- Return {"records": []} if no text is visible`

// stripFences removes a ```json ... ``` wrapper some models add despite the prompt
func stripFences(content []byte) []byte {
	content = bytes.TrimSpace(content)
	if !bytes.HasPrefix(content, []byte("```")) {
		return content
	}
	content = bytes.TrimPrefix(content, []byte("```"))
	if nl := bytes.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = bytes.TrimSuffix(bytes.TrimSpace(content), []byte("```"))
	return bytes.TrimSpace(content)
}
