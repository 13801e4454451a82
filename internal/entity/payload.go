package entity

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/apperror"
)

var validate = validator.New()

// Decode unmarshals an action payload into T and checks its validate tags.
// An empty payload decodes to the zero value, which is validated as well.
func Decode[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return payload, fmt.Errorf("%w: %w", apperror.ErrInvalidPayload, err)
		}
	}

	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %w", apperror.ErrInvalidPayload, err)
	}

	return payload, nil
}
