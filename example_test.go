package sqle_test

import (
	"context"
	"fmt"
	"io"

	sqle "gopkg.in/src-d/go-selectc.v0"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

func Example() {
	e := sqle.NewDefault()
	ctx := e.NewContext(context.Background())

	// Create a test table in the catalog of the engine.
	createTestTable(e)

	_, r, err := e.Query(ctx, `SELECT name, count(*) FROM mytable
	WHERE name = 'John Doe'
	GROUP BY name`)
	checkIfError(err)

	// Iterate results and print them.
	for {
		ro, err := r.Next()
		if err == io.EOF {
			break
		}
		checkIfError(err)

		name := ro[0]
		count := ro[1]

		fmt.Println(name, count)
	}
	checkIfError(r.Close())

	// Output: John Doe 2
}

func checkIfError(err error) {
	if err != nil {
		panic(err)
	}
}

func createTestTable(e *sqle.Engine) {
	_, err := e.Catalog.CreateTable("mytable", nil,
		&sql.Column{Name: "name", Type: "TEXT"},
		&sql.Column{Name: "email", Type: "TEXT"},
	)
	checkIfError(err)

	checkIfError(e.Catalog.Insert("mytable",
		sql.NewRow("John Doe", "john@doe.com"),
		sql.NewRow("John Doe", "johnalt@doe.com"),
		sql.NewRow("Jane Doe", "jane@doe.com"),
		sql.NewRow("Evil Bob", "evilbob@gmail.com"),
	))
}
