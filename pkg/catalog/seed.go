package catalog

import (
	"context"
	"fmt"

	"github.com/nimburion/bookstore/pkg/repository/document"
)

// SeedBooks returns the twelve catalog records loaded at startup, in insertion order.
func SeedBooks() []Book {
	return []Book{
		{Title: "To Kill a Mockingbird", Author: "Harper Lee", Genre: "Fiction", PublishedYear: 1960, Price: 12.99, InStock: true, Pages: 336, Publisher: "J. B. Lippincott & Co."},
		{Title: "1984", Author: "George Orwell", Genre: "Dystopian", PublishedYear: 1949, Price: 10.99, InStock: true, Pages: 328, Publisher: "Secker & Warburg"},
		{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Genre: "Fiction", PublishedYear: 1925, Price: 9.99, InStock: true, Pages: 180, Publisher: "Charles Scribner's Sons"},
		{Title: "Brave New World", Author: "Aldous Huxley", Genre: "Dystopian", PublishedYear: 1932, Price: 11.50, InStock: false, Pages: 311, Publisher: "Chatto & Windus"},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", Genre: "Fantasy", PublishedYear: 1937, Price: 14.99, InStock: true, Pages: 310, Publisher: "George Allen & Unwin"},
		{Title: "The Catcher in the Rye", Author: "J.D. Salinger", Genre: "Fiction", PublishedYear: 1951, Price: 8.99, InStock: true, Pages: 224, Publisher: "Little, Brown and Company"},
		{Title: "Pride and Prejudice", Author: "Jane Austen", Genre: "Romance", PublishedYear: 1813, Price: 7.99, InStock: true, Pages: 432, Publisher: "T. Egerton, Whitehall"},
		{Title: "The Lord of the Rings", Author: "J.R.R. Tolkien", Genre: "Fantasy", PublishedYear: 1954, Price: 19.99, InStock: true, Pages: 1178, Publisher: "Allen & Unwin"},
		{Title: "Animal Farm", Author: "George Orwell", Genre: "Political Satire", PublishedYear: 1945, Price: 8.50, InStock: false, Pages: 112, Publisher: "Secker & Warburg"},
		{Title: "The Alchemist", Author: "Paulo Coelho", Genre: "Fiction", PublishedYear: 1988, Price: 10.99, InStock: true, Pages: 197, Publisher: "HarperOne"},
		{Title: "Moby Dick", Author: "Herman Melville", Genre: "Adventure", PublishedYear: 1851, Price: 12.50, InStock: false, Pages: 635, Publisher: "Harper & Brothers"},
		{Title: "Wuthering Heights", Author: "Emily Brontë", Genre: "Gothic Fiction", PublishedYear: 1847, Price: 9.99, InStock: true, Pages: 342, Publisher: "Thomas Cautley Newby"},
	}
}

// Seed drops the collection and bulk-loads books, returning the number inserted.
func Seed(ctx context.Context, coll document.Collection, books []Book) (int, error) {
	for _, b := range books {
		if err := b.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %q: %w", document.ErrInvalidRecord, b.Title, err)
		}
	}
	docs, err := ToDocuments(books)
	if err != nil {
		return 0, err
	}
	if err := coll.Drop(ctx); err != nil {
		return 0, fmt.Errorf("drop %s: %w", coll.Name(), err)
	}
	ids, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", coll.Name(), err)
	}
	return len(ids), nil
}

// NewMemoryCollection returns an in-memory book collection with the book validator installed.
func NewMemoryCollection(name string, opts ...document.Option) *document.MemoryCollection {
	opts = append([]document.Option{document.WithValidator(ValidateDocument)}, opts...)
	return document.NewMemoryCollection(name, opts...)
}
