package moderation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"gamification/internal/apperr"
	"gamification/internal/imagecheck"
	"gamification/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newRequestPrefix(gameID uint) string {
	return fmt.Sprintf("%s/%d/%s/", stagingRootKey, gameID, uuid.NewString())
}

// stageImages writes every item's image_data under prefix and replaces it with
// the staged key.
func (s *Service) stageImages(ctx context.Context, prefix string, payload *EditPayloadV1) error {
	for i := range payload.Items {
		item := &payload.Items[i]
		field := fmt.Sprintf("items[%d].image_data", i)
		if item.ImageData == "" {
			if isStagingKey(item.ImageURL) {
				return apperr.Field(fmt.Sprintf("items[%d].image_url", i), "image_url cannot reference staged uploads")
			}
			continue
		}
		key, err := s.stageImage(ctx, prefix, i, field, item.ImageData)
		if err != nil {
			return err
		}
		item.ImageURL = key
		item.ImageData = ""
	}
	return nil
}

// stageImage checks one data URL and stores it as item-<i><ext> under prefix.
func (s *Service) stageImage(ctx context.Context, prefix string, i int, field, dataURL string) (string, error) {
	data, err := imagecheck.DecodeDataURL(dataURL)
	if err != nil {
		return "", apperr.Field(field, "image_data is not valid base64")
	}
	ext, err := s.images.Check(data)
	if err != nil {
		return "", apperr.Field(field, imageMessage(err))
	}
	key, err := storage.JoinKey(prefix, fmt.Sprintf("item-%d%s", i, ext))
	if err != nil {
		return "", apperr.Internal("build staging key", err)
	}
	if err := s.store.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return "", apperr.Internal("stage image", err)
	}
	return key, nil
}

func imageMessage(err error) string {
	switch {
	case errors.Is(err, imagecheck.ErrTooLarge):
		return "image is too large"
	case errors.Is(err, imagecheck.ErrUnsupported):
		return "image type is not supported"
	case errors.Is(err, imagecheck.ErrEmpty):
		return "image data is empty"
	default:
		return "image could not be decoded"
	}
}

// discard removes a staging prefix, logging instead of failing.
func (s *Service) discard(ctx context.Context, prefix string) bool {
	if prefix == "" {
		return true
	}
	if err := s.store.DeletePrefix(ctx, prefix); err != nil {
		s.log.Warn("discard staged files failed", zap.String("prefix", prefix), zap.Error(err))
		return false
	}
	return true
}

// fileResolver turns payload image references into item file names relative
// to the game's storage prefix, copying staged uploads into the game.
type fileResolver struct {
	store         storage.Store
	requestPrefix string
	gamePrefix    string
	attemptDir    string
	copied        bool
}

func newFileResolver(store storage.Store, requestPrefix, gamePrefix string) *fileResolver {
	return &fileResolver{
		store:         store,
		requestPrefix: requestPrefix,
		gamePrefix:    gamePrefix,
		attemptDir:    path.Join("items", uuid.NewString()),
	}
}

func (r *fileResolver) resolve(ctx context.Context, field, ref string) (string, error) {
	if isRemoteURL(ref) {
		return ref, nil
	}
	if r.requestPrefix != "" && storage.HasPrefix(ref, r.requestPrefix) {
		name := path.Join(r.attemptDir, path.Base(ref))
		dst, err := storage.JoinKey(r.gamePrefix, name)
		if err != nil {
			return "", apperr.Field(field, "image could not be resolved")
		}
		r.copied = true
		if err := r.store.Copy(ctx, ref, dst); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", apperr.Field(field, "staged image is missing")
			}
			return "", apperr.Internal("copy staged image", err)
		}
		return name, nil
	}
	if isStagingKey(ref) {
		return "", apperr.Field(field, "image could not be resolved")
	}
	key, err := storage.JoinKey(r.gamePrefix, ref)
	if err != nil {
		return "", apperr.Field(field, "image could not be resolved")
	}
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return "", apperr.Internal("check image", err)
	}
	if !ok {
		return "", apperr.Field(field, "image could not be resolved")
	}
	cleaned, _ := storage.CleanKey(ref)
	return cleaned, nil
}

// rollback removes files copied into the game during a failed approval.
func (r *fileResolver) rollback(ctx context.Context) error {
	if !r.copied {
		return nil
	}
	dir, err := storage.JoinKey(r.gamePrefix, r.attemptDir)
	if err != nil {
		return err
	}
	return r.store.DeletePrefix(ctx, dir)
}
