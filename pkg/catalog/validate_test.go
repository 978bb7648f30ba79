package catalog

import (
	"math"
	"testing"

	"github.com/nimburion/bookstore/pkg/repository/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     document.Document
		wantErr string
	}{
		{name: "empty document"},
		{name: "seed shaped", doc: document.Document{
			{Key: FieldPrice, Value: 12.99},
			{Key: FieldPages, Value: int32(336)},
			{Key: FieldPublishedYear, Value: int32(1960)},
			{Key: FieldInStock, Value: true},
		}},
		{name: "integer price", doc: document.Document{{Key: FieldPrice, Value: int64(10)}}},
		{name: "whole float pages", doc: document.Document{{Key: FieldPages, Value: 120.0}}},
		{name: "string price", doc: document.Document{{Key: FieldPrice, Value: "12.99"}}, wantErr: "price must be a number"},
		{name: "negative price", doc: document.Document{{Key: FieldPrice, Value: -0.5}}, wantErr: "price must be non-negative"},
		{name: "nan price", doc: document.Document{{Key: FieldPrice, Value: math.NaN()}}, wantErr: "price must be non-negative"},
		{name: "zero pages", doc: document.Document{{Key: FieldPages, Value: 0}}, wantErr: "pages must be positive"},
		{name: "fractional pages", doc: document.Document{{Key: FieldPages, Value: 10.5}}, wantErr: "pages must be an integer"},
		{name: "fractional year", doc: document.Document{{Key: FieldPublishedYear, Value: 1999.5}}, wantErr: "published_year must be an integer"},
		{name: "string year", doc: document.Document{{Key: FieldPublishedYear, Value: "1999"}}, wantErr: "published_year must be an integer"},
		{name: "string in_stock", doc: document.Document{{Key: FieldInStock, Value: "yes"}}, wantErr: "in_stock must be a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
