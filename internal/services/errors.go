package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProbe         = errors.New("probe failed")
	ErrExtract       = errors.New("extract failed")
	ErrNormalize     = errors.New("normalize failed")
	ErrMerge         = errors.New("merge failed")
	ErrDownload      = errors.New("download failed")
	ErrUpload        = errors.New("upload failed")
	ErrCancelled     = errors.New("cancelled")
	ErrTimeout       = errors.New("timeout")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy label for err. Context cancellation reports as
// "cancelled" regardless of which marker wrapped it.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrExtract):
		return "extract"
	case errors.Is(err, ErrNormalize):
		return "normalize"
	case errors.Is(err, ErrMerge):
		return "merge"
	case errors.Is(err, ErrDownload):
		return "download"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "internal"
	}
}

// IsCancellation reports whether err stems from a cancelled run.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Truncate shortens tool diagnostics to at most limit bytes without splitting
// a UTF-8 sequence.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8Start(text[cut]) {
		cut--
	}
	return text[:cut]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
