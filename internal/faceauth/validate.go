package faceauth

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// allowedImageTypes are the media types accepted for enrollment and probes.
var allowedImageTypes = []string{"image/jpeg", "image/png"}

// Validator enforces format, size and count limits on submitted images
// before they reach the extractor. It never calls the extractor itself.
type Validator struct {
	maxImages     int
	maxImageBytes int64
}

func NewValidator(maxImages int, maxImageBytes int64) *Validator {
	return &Validator{maxImages: maxImages, maxImageBytes: maxImageBytes}
}

// ValidateBatch checks an enrollment batch of 1..maxImages images.
func (v *Validator) ValidateBatch(images [][]byte) error {
	if len(images) == 0 {
		return ErrNoImages
	}
	if len(images) > v.maxImages {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyImages, len(images), v.maxImages)
	}
	for i, img := range images {
		if err := v.validateImage(img); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	return nil
}

// ValidateOne checks a single probe image.
func (v *Validator) ValidateOne(image []byte) error {
	if len(image) == 0 {
		return ErrNoImages
	}
	return v.validateImage(image)
}

func (v *Validator) validateImage(img []byte) error {
	if int64(len(img)) > v.maxImageBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(img), v.maxImageBytes)
	}
	mt := mimetype.Detect(img)
	for _, allowed := range allowedImageTypes {
		if mt.Is(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: detected %s", ErrInvalidMediaType, mt.String())
}
