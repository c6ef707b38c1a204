// turnocall announces called clinic tickets on every waiting-room
// display, by voice and on screen.
//
// Usage:
//
//	turnocall display [--console] [--headless]
//	turnocall call <ticket> <counter>
//	turnocall recall <ticket>
//	turnocall redirect <ticket> <service>
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "turnocall: %v\n", err)
		os.Exit(1)
	}
}
