// Package banner prints the startup banner for cmd/rtprecv.
package banner

import (
	"fmt"
	"strings"
)

const logo = `
======================================================================
 _ __ | |_ _ __  _ __ ___  ___ __   __
| '__|| __| '_ \| '__/ _ \/ __|\ \ / /
| |   | |_| |_) | | |  __/ (__  \ V /
|_|    \__| .__/|_|  \___|\___|  \_/
          |_|
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine represents a single configuration line to display.
type ConfigLine struct {
	Label string
	Value string
}

// Print displays the startup banner with the service name and configuration.
func Print(serviceName string, config []ConfigLine) {
	fmt.Println(logo)
	fmt.Printf("%s\n", serviceName)

	maxLen := 0
	for _, c := range config {
		if len(c.Label) > maxLen {
			maxLen = len(c.Label)
		}
	}

	for _, c := range config {
		padding := strings.Repeat(" ", maxLen-len(c.Label))
		fmt.Printf("  %s%s : %s\n", c.Label, padding, c.Value)
	}

	fmt.Println()
	fmt.Println("Ready.")
	fmt.Println(footer)
	fmt.Println()
}
