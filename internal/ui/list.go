package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/placements/internal/formatter"
	"github.com/desertthunder/placements/internal/models"
)

var _ list.Item = recordItem{}

// recordItem wraps [models.SimplifiedRecord] to implement [list.Item].
type recordItem struct {
	record models.SimplifiedRecord
}

func (i recordItem) FilterValue() string { return i.record.ArtistTitle }
func (i recordItem) Title() string       { return i.record.ArtistTitle }
func (i recordItem) Description() string {
	var parts []string
	if s := formatter.FormatCount(i.record.StreamCount); s != "" {
		parts = append(parts, s+" streams")
	}
	if s := formatter.FormatCount(i.record.VideoViews); s != "" {
		parts = append(parts, s+" views")
	}
	if i.record.Label != nil {
		parts = append(parts, *i.record.Label)
	}
	if len(parts) == 0 {
		return "no metadata found"
	}
	return strings.Join(parts, " • ")
}

func recordItems(records []models.SimplifiedRecord) []list.Item {
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = recordItem{record: r}
	}
	return items
}
