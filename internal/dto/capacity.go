package dto

import (
	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

// CapacityResponse is the advisory capacity view. Upgrade is present only
// when the company is at or over its limit and a higher tier exists.
type CapacityResponse struct {
	domain.CapacitySnapshot
	Upgrade *domain.UpgradeInfo `json:"upgrade,omitempty"`
}
