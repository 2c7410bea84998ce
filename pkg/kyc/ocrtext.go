package kyc

import (
	"bytes"
	"log"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// OCREngine wraps tesseract. It is tolerant by contract: a missing or
// misconfigured tesseract install yields a skipped result, never an error
// that could fail a submission.
type OCREngine struct {
	Language string
}

func NewOCREngine() *OCREngine {
	return &OCREngine{Language: "eng"}
}

// ExtractText runs OCR over the raw image bytes and returns the recognized
// text with its mean word confidence. Two passes are attempted: the original
// bytes and a preprocessed grayscale variant; the pass with the higher mean
// confidence wins.
func (e *OCREngine) ExtractText(data []byte) (res OCRResult) {
	// tesseract is cgo; contain any panic from a broken install as a skip.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("OCR panic recovered: %v", r)
			res = OCRResult{Skipped: true, Warnings: []string{"ocr unavailable"}}
		}
	}()

	text, conf, err := e.runPass(data)
	if err != nil {
		log.Printf("OCR base pass failed: %v", err)
		return OCRResult{Skipped: true, Warnings: []string{"ocr unavailable"}}
	}
	if pre, ok := preprocessForOCR(data); ok {
		if t2, c2, err2 := e.runPass(pre); err2 == nil && c2 > conf {
			text, conf = t2, c2
		}
	}
	res = OCRResult{Text: normalizeOCRText(text), MeanConfidence: conf}
	if res.Text == "" {
		res.Warnings = append(res.Warnings, "no text recognized")
	}
	return res
}

// runPass executes a single tesseract pass, returning text and mean word
// confidence in [0,1].
func (e *OCREngine) runPass(data []byte) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage(e.Language)
	if err := client.SetImageFromBytes(data); err != nil {
		return "", 0, err
	}
	text, err := client.Text()
	if err != nil {
		return "", 0, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		// Text came back but word confidences did not; use a neutral value.
		return text, 0.5, nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return text, sum / float64(len(boxes)) / 100.0, nil
}

// preprocessForOCR produces the grayscale/contrast/upscale variant the base
// pipeline uses for low-resolution captures. Returns false when the bytes do
// not decode.
func preprocessForOCR(data []byte) ([]byte, bool) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// normalizeOCRText collapses whitespace and replaces newlines/tabs, keeping
// line structure out of downstream regexes.
func normalizeOCRText(t string) string {
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	return strings.Join(strings.Fields(t), " ")
}
