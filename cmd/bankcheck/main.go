// Command bankcheck audits and normalizes question-bank files offline.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
