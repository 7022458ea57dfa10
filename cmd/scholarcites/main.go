package main

import "github.com/JakeFAU/scholar-cites/cmd"

func main() {
	cmd.Execute()
}
