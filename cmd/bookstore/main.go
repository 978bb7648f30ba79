// Command bookstore seeds a book catalog and prints the query, aggregation and
// indexing walkthrough against an in-memory or MongoDB collection.
package main

import "github.com/nimburion/bookstore/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.CommandOptions{
		Name:        "bookstore",
		Description: "Book catalog walkthrough over a document collection",
	}))
}
