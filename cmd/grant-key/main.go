// Package main provides a one-shot utility for delegate grant key generation.
//
// It emits the asymmetric keypair used by authority delegate grant checks.
package main

import (
	"os"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/platform/config"
	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate delegate grant key: %v", err)
	}
}
