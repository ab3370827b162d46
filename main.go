// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/bootforge/bootforge/cmd/bootforge"

func main() {
	cmd.Execute()
}
