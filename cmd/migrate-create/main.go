package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

const (
	upTemplate   = "BEGIN;\n\n-- %s\n\nCOMMIT;\n"
	downTemplate = "BEGIN;\n\n-- revert %s\n\nCOMMIT;\n"
)

func main() {
	name := flag.String("name", "", "migration name (lower_snake_case)")
	dir := flag.String("dir", filepath.Join("db", "migrations"), "migrations directory")
	flag.Parse()

	if *name == "" {
		log.Fatal("migration name is required")
	}
	if !namePattern.MatchString(*name) {
		log.Fatal("migration name must be lower_snake_case")
	}

	version := time.Now().UTC().Format("20060102150405")
	base := version + "_" + *name
	upPath := filepath.Join(*dir, base+".up.sql")
	downPath := filepath.Join(*dir, base+".down.sql")

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create migrations dir: %v", err)
	}
	if err := writeNew(upPath, fmt.Sprintf(upTemplate, *name)); err != nil {
		log.Fatalf("create up migration: %v", err)
	}
	if err := writeNew(downPath, fmt.Sprintf(downTemplate, *name)); err != nil {
		_ = os.Remove(upPath)
		log.Fatalf("create down migration: %v", err)
	}

	log.Printf("created %s and %s", upPath, downPath)
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
