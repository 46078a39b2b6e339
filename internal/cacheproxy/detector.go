package cacheproxy

import (
	"net/http"
	"strconv"
	"strings"
)

// Classification is the Content Classifier's advisory label for a
// captured response. It is used only to break metrics down by content
// type and status class; spec.md's Cache Store admits or rejects an
// entry purely by byte size (see Cache.Add), so a Classification never
// gates caching.
type Classification struct {
	ContentType string
	StatusClass string
}

// Label formats the classification for Metrics.RecordClassification.
func (c Classification) Label() string {
	return c.StatusClass + " " + c.ContentType
}

// Detector classifies captured responses for observability.
type Detector struct{}

// NewDetector builds a Detector. It currently holds no configuration, but
// is a type (rather than a free function) so future classification
// options have somewhere to live without changing every call site.
func NewDetector() *Detector {
	return &Detector{}
}

// Classify inspects a response's status code and headers.
func (d *Detector) Classify(statusCode int, headers http.Header) Classification {
	return Classification{
		ContentType: d.contentType(headers),
		StatusClass: statusClass(statusCode),
	}
}

func (d *Detector) contentType(headers http.Header) string {
	ct := headers.Get("Content-Type")
	if ct == "" {
		return "unknown"
	}
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func statusClass(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "xxx"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
