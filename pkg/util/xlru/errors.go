package xlru

import "errors"

var (
	// ErrInvalidSize 表示容量不是正数。
	ErrInvalidSize = errors.New("xlru: size must be greater than 0")

	// ErrSizeExceedsMax 表示容量超过上限。
	ErrSizeExceedsMax = errors.New("xlru: size must not exceed 16777216")

	// ErrInvalidTTL 表示 TTL 为负数。
	ErrInvalidTTL = errors.New("xlru: TTL must not be negative")
)
