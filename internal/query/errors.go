package query

import "github.com/cubedlayer/cubed/internal/cubederr"

var errTooManyCompareDateRanges = cubederr.Query("at most one time dimension may carry compare_date_range")
