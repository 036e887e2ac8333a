// Command cbmconvert converts between Commodore file and disk container
// formats, per the CLI surface documented in cmd.
package main

import "cbmconvert/cmd"

func main() {
	cmd.Execute()
}
