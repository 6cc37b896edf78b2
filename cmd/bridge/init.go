package bridge

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BruceJL/mysql-json-bridge/pkg/tenant"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a tenant config directory",
	Long:  `Creates the tenant config directory and writes an example tenant file into it`,
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	dir := "conf.d"
	if cfg != nil && cfg.Tenants.Dir != "" {
		dir = cfg.Tenants.Dir
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Fatalf("Failed to create tenant config directory: %v", err)
	}

	path := filepath.Join(dir, "example.yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s already exists, leaving it untouched\n", path)
		return
	}

	if err := tenant.WriteExample(path); err != nil {
		log.Fatalf("Failed to write example tenant file: %v", err)
	}
	fmt.Printf("Wrote %s; edit it and start the server with `bridge serve`\n", path)
}
