package main

import (
	"os"

	"github.com/rlust/rvcctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
