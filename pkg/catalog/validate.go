package catalog

import (
	"fmt"
	"math"

	"github.com/nimburion/bookstore/pkg/repository/document"
)

// ValidateDocument enforces the book invariants on whichever fields are present:
// price is a non-negative number, pages a positive integer, published_year an
// integer and in_stock a boolean. Absent fields are accepted.
func ValidateDocument(doc document.Document) error {
	if v, ok := document.Lookup(doc, FieldPrice); ok {
		price, isNum := number(v)
		if !isNum {
			return fmt.Errorf("%s must be a number, got %T", FieldPrice, v)
		}
		if price < 0 || math.IsNaN(price) {
			return fmt.Errorf("%s must be non-negative, got %v", FieldPrice, v)
		}
	}
	if v, ok := document.Lookup(doc, FieldPages); ok {
		pages, isNum := number(v)
		if !isNum || pages != math.Trunc(pages) {
			return fmt.Errorf("%s must be an integer, got %v", FieldPages, v)
		}
		if pages <= 0 {
			return fmt.Errorf("%s must be positive, got %v", FieldPages, v)
		}
	}
	if v, ok := document.Lookup(doc, FieldPublishedYear); ok {
		year, isNum := number(v)
		if !isNum || year != math.Trunc(year) {
			return fmt.Errorf("%s must be an integer, got %v", FieldPublishedYear, v)
		}
	}
	if v, ok := document.Lookup(doc, FieldInStock); ok {
		if _, isBool := v.(bool); !isBool {
			return fmt.Errorf("%s must be a boolean, got %T", FieldInStock, v)
		}
	}
	return nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
