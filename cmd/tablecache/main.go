package main

import "github.com/tablecache/tablecache/cmd"

func main() {
	cmd.Execute()
}
