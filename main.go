package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mickamy/ormgraph/internal/gen"
)

var version = "dev"

func main() {
	typeNames := flag.String("type", "", "comma-separated struct type names (required)")
	tableName := flag.String("table", "", "table name (optional; single -type only, inferred if omitted)")
	output := flag.String("output", "", "output file name (default <first type>_gen.go)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ormgraph", version)
		return
	}

	if *typeNames == "" {
		log.Fatal("-type flag is required")
	}
	names := strings.Split(*typeNames, ",")
	if *tableName != "" && len(names) > 1 {
		log.Fatal("-table can only be used with a single -type")
	}

	goFile := os.Getenv("GOFILE")
	if goFile == "" {
		log.Fatal("GOFILE environment variable is not set (run via go:generate)")
	}

	parsed, err := gen.Parse(goFile)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	infos := make([]*gen.StructInfo, 0, len(names))
	for _, name := range names {
		info, err := gen.Find(parsed, strings.TrimSpace(name))
		if err != nil {
			log.Fatalf("parse: %v", err)
		}
		infos = append(infos, info)
	}
	infos[0].TableName = *tableName

	src, err := gen.RenderFile(infos)
	if err != nil {
		log.Fatalf("render: %v", err)
	}

	outFile := *output
	if outFile == "" {
		outFile = strings.ToLower(infos[0].Name) + "_gen.go"
	}
	outPath := filepath.Join(filepath.Dir(goFile), outFile)

	if err := os.WriteFile(outPath, src, 0o644); err != nil { //nolint:gosec // generated code should be world-readable
		log.Fatalf("write %s: %v", outPath, err)
	}

	fmt.Printf("ormgraph: wrote %s\n", outPath)
}
