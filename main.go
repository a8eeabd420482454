package main

import (
	"fmt"
	"os"

	// Store drivers register themselves with the datasource registry.
	_ "github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
