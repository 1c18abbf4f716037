package main

import (
	"fmt"

	"github.com/relayforge/hostess/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
