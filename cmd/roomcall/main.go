// Command roomcall joins a room call through the database bridge, using
// the local microphone and speaker and a test-pattern camera.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
