package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetHighlight fetches one highlight row by id
func (c *Catalog) GetHighlight(highlightID int64) (*HighlightRecord, error) {
	row := c.db.QueryRow(`SELECT highlight_id, pk, title, number_of_items
		FROM Highlight WHERE highlight_id = ?`, highlightID)

	var h HighlightRecord
	err := row.Scan(&h.HighlightID, &h.PK, &h.Title, &h.NumberOfItems)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning highlight: %w", err)
	}
	return &h, nil
}

// ListHighlights returns all highlight rows for a profile, the
// live-feed sentinel row included.
func (c *Catalog) ListHighlights(pk int64) ([]HighlightRecord, error) {
	rows, err := c.db.Query(`SELECT highlight_id, pk, title, number_of_items
		FROM Highlight WHERE pk = ?`, pk)
	if err != nil {
		return nil, fmt.Errorf("listing highlights: %w", err)
	}
	defer rows.Close()

	var highlights []HighlightRecord
	for rows.Next() {
		var h HighlightRecord
		if err := rows.Scan(&h.HighlightID, &h.PK, &h.Title, &h.NumberOfItems); err != nil {
			return nil, fmt.Errorf("scanning highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

// InsertHighlight records a newly observed highlight
func (c *Catalog) InsertHighlight(h *HighlightRecord) error {
	_, err := c.db.Exec(`INSERT INTO Highlight (highlight_id, pk, title, number_of_items)
		VALUES (?, ?, ?, ?)`, h.HighlightID, h.PK, h.Title, h.NumberOfItems)
	if err != nil {
		return fmt.Errorf("inserting highlight: %w", err)
	}
	return nil
}

// UpdateHighlightTitle records an upstream title change
func (c *Catalog) UpdateHighlightTitle(highlightID int64, title string) error {
	_, err := c.db.Exec(`UPDATE Highlight SET title = ? WHERE highlight_id = ?`, title, highlightID)
	if err != nil {
		return fmt.Errorf("updating highlight title: %w", err)
	}
	return nil
}

// RaiseHighlightItemCount raises number_of_items to the given value.
// The count is a high-water mark: it never decreases, since upstream
// counts undercount once items expire while the archive keeps them.
func (c *Catalog) RaiseHighlightItemCount(highlightID int64, count int64) error {
	_, err := c.db.Exec(`UPDATE Highlight SET number_of_items = ?
		WHERE highlight_id = ? AND number_of_items < ?`, count, highlightID, count)
	if err != nil {
		return fmt.Errorf("raising highlight item count: %w", err)
	}
	return nil
}

// AddCoverHistory appends a superseded cover id for a highlight
func (c *Catalog) AddCoverHistory(highlightID, coverID int64) error {
	_, err := c.db.Exec(`INSERT INTO CoverHistory (highlight_id, cover_id) VALUES (?, ?)`,
		highlightID, coverID)
	if err != nil {
		return fmt.Errorf("appending cover history: %w", err)
	}
	return nil
}
