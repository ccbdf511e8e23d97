package rate_limiter

import (
	"fmt"

	"golang.org/x/time/rate"
)

type Definition struct {
	// the limiter name
	Name string
	// the actual limiter config
	FillRate   rate.Limit
	BucketSize int
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s Limit(/s): %v, Burst: %d", d.Name, d.FillRate, d.BucketSize)
}

func (d *Definition) Validate() []string {
	var validationErrors []string
	if d.Name == "" {
		validationErrors = append(validationErrors, "rate limiter definition must specify a name")
	}
	if d.FillRate < 0 {
		validationErrors = append(validationErrors, "rate limiter fill rate must not be negative")
	}
	if d.FillRate != 0 && d.BucketSize < 1 {
		validationErrors = append(validationErrors, "rate limiter bucket size must be at least 1")
	}
	return validationErrors
}
