// Package catalog holds the book record type, its seed data and validation.
package catalog

import (
	"fmt"

	"github.com/nimburion/bookstore/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultDatabase is the database the seed script targets.
	DefaultDatabase = "plp_bookstore"
	// DefaultCollection is the collection holding book records.
	DefaultCollection = "books"
)

// Field names as stored in documents.
const (
	FieldTitle         = "title"
	FieldAuthor        = "author"
	FieldGenre         = "genre"
	FieldPublishedYear = "published_year"
	FieldPrice         = "price"
	FieldInStock       = "in_stock"
	FieldPages         = "pages"
	FieldPublisher     = "publisher"
)

// Book is a catalog record. ID is assigned by the store on insert.
type Book struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Title         string             `bson:"title" json:"title"`
	Author        string             `bson:"author" json:"author"`
	Genre         string             `bson:"genre" json:"genre"`
	PublishedYear int                `bson:"published_year" json:"published_year"`
	Price         float64            `bson:"price" json:"price"`
	InStock       bool               `bson:"in_stock" json:"in_stock"`
	Pages         int                `bson:"pages" json:"pages"`
	Publisher     string             `bson:"publisher" json:"publisher"`
}

// Validate checks the numeric invariants of a book.
func (b Book) Validate() error {
	if b.Price < 0 {
		return fmt.Errorf("price must be non-negative, got %v", b.Price)
	}
	if b.Pages <= 0 {
		return fmt.Errorf("pages must be positive, got %d", b.Pages)
	}
	return nil
}

// ToDocument converts a book into a document with fields in declaration order.
// A zero ID is omitted so the store assigns one.
func ToDocument(b Book) (document.Document, error) {
	raw, err := bson.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal book %q: %w", b.Title, err)
	}
	var doc document.Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal book %q: %w", b.Title, err)
	}
	return doc, nil
}

// ToDocuments converts books in order.
func ToDocuments(books []Book) ([]document.Document, error) {
	out := make([]document.Document, 0, len(books))
	for _, b := range books {
		doc, err := ToDocument(b)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// FromDocument decodes a stored document. Missing fields keep their zero value.
func FromDocument(doc document.Document) (Book, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return Book{}, fmt.Errorf("marshal document: %w", err)
	}
	var b Book
	if err := bson.Unmarshal(raw, &b); err != nil {
		return Book{}, fmt.Errorf("decode book: %w", err)
	}
	return b, nil
}

// FromDocuments decodes documents in order.
func FromDocuments(docs []document.Document) ([]Book, error) {
	out := make([]Book, 0, len(docs))
	for _, d := range docs {
		b, err := FromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
