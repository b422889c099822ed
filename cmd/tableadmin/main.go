package main

import "github.com/vietddude/tableadmin/internal/cli"

func main() {
	cli.Execute()
}
