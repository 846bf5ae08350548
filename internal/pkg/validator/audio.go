package validator

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/futig/wizard-backend/internal/entity"
)

// AllowedAudioExtensions covers Telegram voice notes (ogg/oga opus) plus
// plain wav uploads.
var AllowedAudioExtensions = map[string]bool{
	".ogg": true,
	".oga": true,
	".wav": true,
}

var allowedAudioContentTypes = map[string]bool{
	"audio/ogg":                true,
	"audio/opus":               true,
	"audio/wav":                true,
	"audio/x-wav":              true,
	"application/octet-stream": true,
}

// Validator validates API requests and uploads
type Validator struct {
	maxAudioBytes int64
}

func NewValidator(maxAudioBytes int64) *Validator {
	return &Validator{maxAudioBytes: maxAudioBytes}
}

// ValidateAudioFile validates a voice upload before it is handed to the
// transcription service.
func (v *Validator) ValidateAudioFile(file *multipart.FileHeader) error {
	if file == nil {
		return fmt.Errorf("%w: audio file", entity.ErrMissingField)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !AllowedAudioExtensions[ext] {
		return fmt.Errorf("%w: %s (allowed: ogg, oga, wav)", entity.ErrInvalidExtension, ext)
	}

	if file.Size > v.maxAudioBytes {
		return fmt.Errorf("%w: file '%s' is %d bytes (max %d)", entity.ErrFileTooLarge, file.Filename, file.Size, v.maxAudioBytes)
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !allowedAudioContentTypes[contentType] {
		return fmt.Errorf("%w: content type '%s'", entity.ErrInvalidExtension, contentType)
	}

	return nil
}
