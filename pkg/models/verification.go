package models

import "time"

// VerificationReport is the outcome of the optional post-completion accessibility check
type VerificationReport struct {
	TransformationID  string         `json:"transformation_id"`
	ImageURL          string         `json:"image_url"`
	Timestamp         time.Time      `json:"timestamp"`
	ProcessingTimeSec float64        `json:"processing_time_sec"`
	Quality           Quality        `json:"quality"`
	Metrics           ImageMetrics   `json:"metrics"`
	TextRetention     *TextRetention `json:"text_retention,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
}

// Quality flags derived from the result image
type Quality struct {
	Readable    bool `json:"readable"`
	TooDark     bool `json:"too_dark,omitempty"`
	TooBright   bool `json:"too_bright,omitempty"`
	Blurry      bool `json:"blurry,omitempty"`
	LowContrast bool `json:"low_contrast,omitempty"`
}

// ImageMetrics are the raw statistics behind the quality flags
type ImageMetrics struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	AvgLuminance  float64 `json:"average_luminance"`
	LuminanceStd  float64 `json:"luminance_std_dev"`
	LaplacianVar  float64 `json:"laplacian_variance"`
	AvgSaturation float64 `json:"average_saturation"`
}

// TextRetention compares text found in the original against text found in the result
type TextRetention struct {
	OriginalText string  `json:"original_text"`
	ResultText   string  `json:"result_text"`
	WER          float64 `json:"word_error_rate"`
	CER          float64 `json:"character_error_rate"`
	OCRError     string  `json:"ocr_error,omitempty"`
}
