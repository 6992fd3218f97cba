package main

import "chantier/cmd/chantierctl/cmd"

func main() {
	cmd.Execute()
}
