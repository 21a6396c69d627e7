package domain

import "strings"

// Plan is a sizing tier resolved from the catalog. Weight gives the
// total order used by the downgrade guard: plan changes require
// non-decreasing weight.
type Plan struct {
	ID     string
	Name   string
	Weight int
	Memory string
	Disk   string
}

// NormalizeQuantity rewrites decimal byte suffixes to the binary-unit
// form the platform API accepts ("512MB" -> "512Mi"). Quantities that
// already carry a binary suffix pass through unchanged.
func NormalizeQuantity(q string) string {
	if strings.HasSuffix(q, "B") && !strings.HasSuffix(q, "iB") {
		return strings.TrimSuffix(q, "B") + "i"
	}
	return q
}
