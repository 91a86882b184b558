package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/localnerve/autogift/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Prints the tables and indexes AutoMigrate creates, as SQLite DDL
func main() {
	var dsn string
	flag.StringVar(&dsn, "db", ":memory:", "sqlite database to migrate and inspect")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&schema)
		fmt.Println(schema)

		var indexes []string
		db.Raw("SELECT sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL", table).Scan(&indexes)
		for _, idx := range indexes {
			fmt.Println(idx)
		}
	}
}
