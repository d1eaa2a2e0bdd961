// Package pagination normalizes page-size inputs for list operations.
package pagination

// PageSizeConfig sets the default and ceiling applied to requested page sizes.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize resolves a caller-supplied page size against cfg. Zero and
// negative values take the default, values above Max are capped, and the
// result is always at least 1.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}
