// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command vkpt renders a scene description with the unified
// PT/LT/PPM/BPM/BDPT/VCM light-transport estimator and writes the
// tonemapped result to a PNG.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
