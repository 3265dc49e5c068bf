package main

import (
	"github.com/vaultdrop/vaultdrop/internal/cmd"
)

func main() {
	cmd.Execute()
}
