package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
)

// ProductKeyFor encodes a product as "<type>:<id>", e.g. "S:12".
func ProductKeyFor(productType ProductType, productId int) projection.ProductKey {
	if productType == "" {
		productType = ProductTypeSingle
	}
	return projection.ProductKey(fmt.Sprintf("%s:%d", productType, productId))
}

func ParseProductKey(key projection.ProductKey) (ProductType, int, error) {
	typePart, idPart, ok := strings.Cut(string(key), ":")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", utils.ErrorInvalidProductKey, key)
	}
	productType, err := ParseProductType(typePart)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", utils.ErrorInvalidProductKey, key)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", utils.ErrorInvalidProductKey, key)
	}
	return productType, id, nil
}
