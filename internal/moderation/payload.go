package moderation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"gamification/internal/apperr"
	"gamification/internal/storage"
)

const (
	PayloadVersion  = 1
	maxTitleLen     = 100
	maxItemNameLen  = 100
	maxThumbnailLen = 255
	minPayloadItems = 2
	stagingRootKey  = "edit-requests"
	draftRootKey    = "worldcup-drafts"
)

// ItemEdit is one entry of the proposed item set. An item with an ID that
// matches a live item updates it; anything else creates a new item.
type ItemEdit struct {
	ID        *uint  `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
	SortOrder *int   `json:"sort_order,omitempty"`
}

func (i ItemEdit) isNew() bool {
	return i.ID == nil
}

// EditPayloadV1 is the proposed content of a game. Empty scalar fields leave
// the live value unchanged; a nil Items leaves the item set unchanged.
type EditPayloadV1 struct {
	Version           int        `json:"version"`
	Title             string     `json:"title,omitempty"`
	Description       string     `json:"description,omitempty"`
	ThumbnailImageURL string     `json:"thumbnail_image_url,omitempty"`
	Items             []ItemEdit `json:"items,omitempty"`
}

// Decode parses raw into a payload, rejecting unknown fields.
func Decode(raw []byte) (EditPayloadV1, error) {
	var payload EditPayloadV1
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return payload, apperr.Field("payload", "payload is required")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return payload, apperr.Field("payload", "payload is malformed: "+err.Error())
	}
	if payload.Version == 0 {
		payload.Version = PayloadVersion
	}
	return payload, nil
}

// Validate checks the payload shape. Image resolution is checked on approval.
func (p *EditPayloadV1) Validate() error {
	return p.validate(true)
}

// validate trims the payload and checks it. Drafts pass complete=false and may
// hold fewer items or items still missing a name or image.
func (p *EditPayloadV1) validate(complete bool) error {
	if p.Version == 0 {
		p.Version = PayloadVersion
	}
	fields := map[string]string{}
	if p.Version != PayloadVersion {
		fields["version"] = fmt.Sprintf("unsupported payload version %d", p.Version)
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.ThumbnailImageURL = strings.TrimSpace(p.ThumbnailImageURL)
	if utf8.RuneCountInString(p.Title) > maxTitleLen {
		fields["title"] = "title must be at most 100 characters"
	}
	if utf8.RuneCountInString(p.ThumbnailImageURL) > maxThumbnailLen {
		fields["thumbnail_image_url"] = "thumbnail_image_url must be at most 255 characters"
	}

	if complete && p.Items != nil && len(p.Items) < minPayloadItems {
		fields["items"] = "at least 2 items are required"
	}
	seen := map[uint]bool{}
	for i := range p.Items {
		item := &p.Items[i]
		item.Name = strings.TrimSpace(item.Name)
		item.ImageURL = strings.TrimSpace(item.ImageURL)
		prefix := fmt.Sprintf("items[%d]", i)
		if item.ID != nil {
			if seen[*item.ID] {
				fields[prefix+".id"] = "duplicate item id"
			}
			seen[*item.ID] = true
		}
		if utf8.RuneCountInString(item.Name) > maxItemNameLen {
			fields[prefix+".name"] = "name must be at most 100 characters"
		}
		if complete && item.isNew() && item.Name == "" {
			fields[prefix+".name"] = "new items require a name"
		}
		if complete && item.isNew() && item.ImageURL == "" && strings.TrimSpace(item.ImageData) == "" {
			fields[prefix+".image_data"] = "new items require image data"
		}
		if item.SortOrder != nil && *item.SortOrder < 0 {
			fields[prefix+".sort_order"] = "sort_order must be zero or greater"
		}
		if item.ImageURL != "" && !isRemoteURL(item.ImageURL) {
			if _, err := storage.CleanKey(item.ImageURL); err != nil {
				fields[prefix+".image_url"] = "image_url is not a valid location"
			}
		}
	}
	if len(fields) > 0 {
		return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid edit payload", Fields: fields}
	}
	return nil
}

// Marshal encodes the payload for storage. Image data never reaches storage.
func (p EditPayloadV1) Marshal() ([]byte, error) {
	items := make([]ItemEdit, len(p.Items))
	copy(items, p.Items)
	for i := range items {
		items[i].ImageData = ""
	}
	if p.Items == nil {
		items = nil
	}
	p.Items = items
	return json.Marshal(p)
}

func isRemoteURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isStagingKey(value string) bool {
	return storage.HasPrefix(value, stagingRootKey) || storage.HasPrefix(value, draftRootKey)
}
