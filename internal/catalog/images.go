package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// imageEntry is one row of the static name→image tables.
type imageEntry struct {
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Image          string `json:"image"`
}

// ImageResolver performs offline, read-only lookups against the three
// static image tables (skins, crates, stickers). Tables are loaded once
// at construction; lookups never mutate state.
type ImageResolver struct {
	skins    []imageEntry
	crates   []imageEntry
	stickers []imageEntry
}

// NewImageResolver loads the image tables from dir. A missing table is
// logged and treated as empty rather than failing startup.
func NewImageResolver(dir string, logger zerolog.Logger) *ImageResolver {
	log := logger.With().Str("component", "image_resolver").Logger()

	r := &ImageResolver{}
	r.skins = loadTable(filepath.Join(dir, "skins.json"), log)
	r.crates = loadTable(filepath.Join(dir, "crates.json"), log)
	r.stickers = loadTable(filepath.Join(dir, "stickers.json"), log)
	return r
}

func loadTable(path string, logger zerolog.Logger) []imageEntry {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("image table unavailable")
		return nil
	}

	var entries []imageEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("image table malformed")
		return nil
	}
	return entries
}

// Resolve returns an image URL for an item name, falling back to a
// placeholder when no table matches.
func (r *ImageResolver) Resolve(name string) string {
	nameLower := strings.TrimSpace(strings.ToLower(name))
	cleaned := cleanName(nameLower)

	for _, skin := range r.skins {
		if substr(strings.ToLower(skin.Name), cleaned) || substr(strings.ToLower(skin.MarketHashName), cleaned) {
			if skin.Image != "" {
				return skin.Image
			}
		}
	}

	for _, crate := range r.crates {
		crateName := strings.ToLower(crate.Name)
		if nameLower == crateName || substr(crateName, cleaned) {
			if crate.Image != "" {
				return crate.Image
			}
		}
	}

	for _, sticker := range r.stickers {
		stickerName := strings.ToLower(sticker.Name)
		if substr(stickerName, cleaned) || substr(stickerName, nameLower) {
			if sticker.Image != "" {
				return sticker.Image
			}
		}
	}

	return placeholderURL(name)
}

// cleanName strips the StatTrak prefix and any wear suffix so that
// "StatTrak™ AK-47 | Redline (Field-Tested)" matches its base skin row.
func cleanName(lower string) string {
	cleaned := strings.ReplaceAll(lower, "stattrak™ ", "")
	if idx := strings.Index(cleaned, "("); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimSpace(cleaned)
}

func substr(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}

func placeholderURL(name string) string {
	label := name
	if runes := []rune(label); len(runes) > 20 {
		label = string(runes[:20])
	}
	return fmt.Sprintf("https://via.placeholder.com/80x60?text=%s", strings.ReplaceAll(label, " ", "+"))
}
