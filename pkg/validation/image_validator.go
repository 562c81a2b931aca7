package validation

import (
	apperrors "go-aid-analyzer/internal/errors"
)

// ValidateImagePayload only checks that image data is present. Size and
// format are not inspected.
func ValidateImagePayload(image string) error {
	if image == "" {
		return apperrors.NewValidationError(apperrors.MessageNoImage, nil)
	}
	return nil
}
