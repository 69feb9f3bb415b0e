package main

import (
	"log"

	"chunkvault/cmd/cv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
