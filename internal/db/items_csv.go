package db

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

type itemRecord struct {
	Name      string
	FileName  string
	SortOrder int
}

// LoadGameItems reads `name,file_name[,sort_order]` rows from a CSV (header
// skipped) and inserts them as official items of gameID. Rows whose file_name
// already exists for the game are skipped.
func LoadGameItems(conn *gorm.DB, gameID uint, path string) (int, error) {
	if conn == nil {
		return 0, errors.New("db connection is nil")
	}
	records, err := readItems(path)
	if err != nil {
		return 0, err
	}
	inserted := 0
	err = conn.Transaction(func(tx *gorm.DB) error {
		var game Game
		if err := tx.Select("id").First(&game, gameID).Error; err != nil {
			return err
		}
		for _, record := range records {
			entry := GameItem{
				GameID:     gameID,
				Name:       record.Name,
				FileName:   record.FileName,
				SortOrder:  record.SortOrder,
				SourceType: ItemSourceOfficial,
				IsActive:   true,
				IsApproved: true,
			}
			var existing int64
			if err := tx.Model(&GameItem{}).
				Where("game_id = ? AND file_name = ?", gameID, record.FileName).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}

func readItems(path string) ([]itemRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records []itemRecord
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		name := strings.TrimSpace(row[0])
		fileName := strings.TrimSpace(row[1])
		if fileName == "" {
			continue
		}
		sortOrder := len(records)
		if len(row) >= 3 {
			if value, err := strconv.Atoi(strings.TrimSpace(row[2])); err == nil {
				sortOrder = value
			}
		}
		records = append(records, itemRecord{Name: name, FileName: fileName, SortOrder: sortOrder})
	}
	return records, nil
}
