// Command kidssmart scrapes children's activity listings and serves them.
package main

import (
	"github.com/JakeFAU/kidssmart/cmd"
)

func main() {
	cmd.Execute()
}
