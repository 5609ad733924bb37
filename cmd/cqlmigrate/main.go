package main

import "github.com/aqasim81/cql-migration-engine/internal/cli"

func main() {
	cli.Execute()
}
