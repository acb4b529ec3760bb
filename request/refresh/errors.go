package refresh

import "github.com/imtaco/reqflow/internal/errors"

const ErrInvalidOptions errors.Code = "invalid refresh options"
