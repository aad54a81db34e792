package moderation

import (
	"context"
	"fmt"

	"gamification/internal/apperr"
	"gamification/internal/db"

	"gorm.io/gorm"
)

func applyScalars(tx *gorm.DB, game *db.Game, payload EditPayloadV1) error {
	updates := map[string]any{}
	if payload.Title != "" && payload.Title != game.Title {
		updates["title"] = payload.Title
	}
	if payload.Description != "" && payload.Description != game.Description {
		updates["description"] = payload.Description
	}
	if payload.ThumbnailImageURL != "" && payload.ThumbnailImageURL != game.ThumbnailImageURL {
		updates["thumbnail_image_url"] = payload.ThumbnailImageURL
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(game).Updates(updates).Error; err != nil {
		return apperr.Internal("update game", err)
	}
	return nil
}

// reconcileItems makes the live item set of game match edits exactly: matched
// items are updated in place, the rest of edits become new items, and live
// items not mentioned are deleted.
func (s *Service) reconcileItems(ctx context.Context, tx *gorm.DB, game *db.Game, req *db.GameEditRequest, edits []ItemEdit, files *fileResolver) error {
	var live []db.GameItem
	if err := tx.Where("game_id = ?", game.ID).Find(&live).Error; err != nil {
		return apperr.Internal("load items", err)
	}
	byID := make(map[uint]db.GameItem, len(live))
	for _, item := range live {
		byID[item.ID] = item
	}

	kept := map[uint]bool{}
	for i, edit := range edits {
		sortOrder := i
		if edit.SortOrder != nil {
			sortOrder = *edit.SortOrder
		}
		field := fmt.Sprintf("items[%d].image_url", i)

		if edit.ID != nil {
			if current, ok := byID[*edit.ID]; ok {
				kept[current.ID] = true
				updates := map[string]any{}
				if edit.Name != "" && edit.Name != current.Name {
					updates["name"] = edit.Name
				}
				if edit.ImageURL != "" && edit.ImageURL != current.FileName {
					fileName, err := files.resolve(ctx, field, edit.ImageURL)
					if err != nil {
						return err
					}
					if fileName != current.FileName {
						updates["file_name"] = fileName
					}
				}
				if sortOrder != current.SortOrder {
					updates["sort_order"] = sortOrder
				}
				if len(updates) == 0 {
					continue
				}
				if err := tx.Model(&current).Updates(updates).Error; err != nil {
					return apperr.Internal("update item", err)
				}
				continue
			}
		}

		if edit.ImageURL == "" {
			return apperr.Field(field, "new items require an image")
		}
		if edit.Name == "" {
			return apperr.Field(fmt.Sprintf("items[%d].name", i), "new items require a name")
		}
		fileName, err := files.resolve(ctx, field, edit.ImageURL)
		if err != nil {
			return err
		}
		submitter := req.UserID
		item := db.GameItem{
			GameID:       game.ID,
			Name:         edit.Name,
			FileName:     fileName,
			UploadedByID: &submitter,
			SourceType:   db.ItemSourceUserUpload,
			SortOrder:    sortOrder,
			IsActive:     true,
			IsApproved:   true,
		}
		if err := tx.Create(&item).Error; err != nil {
			return apperr.Internal("create item", err)
		}
	}

	var stale []uint
	for _, item := range live {
		if !kept[item.ID] {
			stale = append(stale, item.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := tx.Where("game_id = ? AND id IN ?", game.ID, stale).Delete(&db.GameItem{}).Error; err != nil {
		return apperr.Internal("delete items", err)
	}
	return nil
}
