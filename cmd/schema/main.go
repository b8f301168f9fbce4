// Command schema 为每种线上消息生成 JSON Schema，供前端与其他语言的客户端校验
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"

	"minisync/codec"
)

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write <type>.schema.json files into")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schemas := codec.Schemas()
	types := make([]string, 0, len(schemas))
	for t := range schemas {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		path := filepath.Join(outDir, t+".schema.json")
		if err := writeSchema(path, schemas[t]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write schema %s: %v\n", t, err)
			os.Exit(1)
		}
		fmt.Println(path)
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
