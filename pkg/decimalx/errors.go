package decimalx

import "errors"

// ErrInvalidPrice is returned when a limit price is non-positive after
// rounding and no valid order size can be computed from it.
var ErrInvalidPrice = errors.New("decimalx: invalid limit price")
