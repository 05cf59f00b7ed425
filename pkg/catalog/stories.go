package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetStory fetches one story placement
func (c *Catalog) GetStory(pk, storyPK, highlightID int64) (*StoryRecord, error) {
	row := c.db.QueryRow(`SELECT pk, story_pk, highlight_id, timestamp
		FROM Story WHERE pk = ? AND story_pk = ? AND highlight_id = ?`,
		pk, storyPK, highlightID)

	var s StoryRecord
	err := row.Scan(&s.PK, &s.StoryPK, &s.HighlightID, &s.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning story: %w", err)
	}
	return &s, nil
}

// ListStories returns every story placement for a profile, across the
// live feed and all highlights.
func (c *Catalog) ListStories(pk int64) ([]StoryRecord, error) {
	rows, err := c.db.Query(`SELECT pk, story_pk, highlight_id, timestamp
		FROM Story WHERE pk = ?`, pk)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	var stories []StoryRecord
	for rows.Next() {
		var s StoryRecord
		if err := rows.Scan(&s.PK, &s.StoryPK, &s.HighlightID, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// InsertStory records a story placement
func (c *Catalog) InsertStory(s *StoryRecord) error {
	_, err := c.db.Exec(`INSERT INTO Story (pk, story_pk, highlight_id, timestamp)
		VALUES (?, ?, ?, ?)`, s.PK, s.StoryPK, s.HighlightID, s.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// CountStories counts the archived placements for one highlight
func (c *Catalog) CountStories(pk, highlightID int64) (int64, error) {
	row := c.db.QueryRow(`SELECT COUNT(*) FROM Story WHERE pk = ? AND highlight_id = ?`,
		pk, highlightID)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting stories: %w", err)
	}
	return count, nil
}
