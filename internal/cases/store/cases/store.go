package cases

import (
	"kycflow/internal/cases/models"
)

// Filter narrows List results. Zero Status lists every status.
type Filter struct {
	Status models.Status
	Limit  int
}

const defaultListLimit = 50

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
