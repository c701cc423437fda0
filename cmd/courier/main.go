package main

import "github.com/saracrm/courier/internal/cli"

func main() {
	cli.Execute()
}
