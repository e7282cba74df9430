package main

import "github.com/andresmejia3/guardian/cmd"

func main() {
	cmd.Execute()
}
