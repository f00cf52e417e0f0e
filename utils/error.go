package utils

import "errors"

var ErrorInvalidProductKey = errors.New("invalid product key")
