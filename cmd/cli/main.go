package main

import (
	"fmt"
	"os"

	"github.com/crucial707/hci-inventory/cmd/cli/auth"
	"github.com/crucial707/hci-inventory/cmd/cli/products"
	"github.com/crucial707/hci-inventory/cmd/cli/root"
)

func main() {
	rootCmd := root.GetRoot()
	auth.InitAuth(rootCmd)
	products.InitProducts(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
