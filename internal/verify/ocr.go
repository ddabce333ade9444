package verify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
	"github.com/otiai10/gosseract/v2"
)

// OCR extracts text from encoded image bytes
type OCR interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// TesseractOCR runs Tesseract through gosseract. A client is created per call
// because gosseract clients are not safe for concurrent use.
type TesseractOCR struct {
	languages []string
}

// NewTesseractOCR creates an OCR engine for languages (default "eng")
func NewTesseractOCR(languages ...string) *TesseractOCR {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractOCR{languages: languages}
}

// Text implements OCR
func (t *TesseractOCR) Text(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", err
	}
	return client.Text()
}

// normalizeText lowercases and collapses whitespace
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CharacterErrorRate is the edit distance between the texts divided by the
// reference length. An empty reference yields 0 for an empty candidate and 1 otherwise.
func CharacterErrorRate(reference, candidate string) float64 {
	reference, candidate = normalizeText(reference), normalizeText(candidate)
	refLen := utf8.RuneCountInString(reference)
	if refLen == 0 {
		if candidate == "" {
			return 0
		}
		return 1
	}
	return float64(levenshtein.Distance(reference, candidate)) / float64(refLen)
}

// WordErrorRate compares the word sequences of both texts
func WordErrorRate(reference, candidate string) float64 {
	refWords := strings.Fields(normalizeText(reference))
	candWords := strings.Fields(normalizeText(candidate))
	if len(refWords) == 0 {
		if len(candWords) == 0 {
			return 0
		}
		return 1
	}
	if len(candWords) == 0 {
		return 1
	}
	rate, _ := wer.WER(refWords, candWords)
	return rate
}
