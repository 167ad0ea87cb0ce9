package application

import (
	"errors"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
