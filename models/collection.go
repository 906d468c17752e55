package models

import (
	"time"
)

// Collection: static config of collectable items (loaded in code, like badge triggers)
type Collection struct {
	ID      string
	Name    string
	ItemIDs []string
	Bonus   int64 // coins granted once when every item is collected
}

// CollectedItem: one owned item (many-to-many participant ↔ collection item)
type CollectedItem struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	ParticipantID string    `gorm:"uniqueIndex:ux_collected_item,priority:1;not null"`
	CollectionID  string    `gorm:"uniqueIndex:ux_collected_item,priority:2;not null"`
	ItemID        string    `gorm:"uniqueIndex:ux_collected_item,priority:3;not null"`
	CollectedAt   time.Time `gorm:"autoCreateTime"`
}

// CollectionBonus: one-shot marker, at most one per (participant, collection)
type CollectionBonus struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	ParticipantID string    `gorm:"uniqueIndex:ux_collection_bonus,priority:1;not null"`
	CollectionID  string    `gorm:"uniqueIndex:ux_collection_bonus,priority:2;not null"`
	Coins         int64     `gorm:"not null"`
	AwardedAt     time.Time `gorm:"autoCreateTime"`
}

// Predefined collections (example)
var Collections = []Collection{
	{
		ID:      "love-notes",
		Name:    "Love Notes",
		ItemIDs: []string{"note-first-date", "note-inside-joke", "note-favorite-song", "note-future-trip", "note-thank-you"},
		Bonus:   50,
	},
	{
		ID:      "dare-cards",
		Name:    "Daredevils",
		ItemIDs: []string{"dare-dance", "dare-serenade", "dare-portrait", "dare-accent"},
		Bonus:   30,
	},
	{
		ID:      "seasons",
		Name:    "Four Seasons",
		ItemIDs: []string{"season-spring", "season-summer", "season-autumn", "season-winter"},
		Bonus:   40,
	},
}

// FindCollection returns the configured collection with the given id.
func FindCollection(id string) (Collection, bool) {
	for _, c := range Collections {
		if c.ID == id {
			return c, true
		}
	}
	return Collection{}, false
}
