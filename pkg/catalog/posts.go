package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

// InsertPostPlaceholder records a discovered post code with NULL media
// fields. Re-observing a known code is a no-op, so discovery is safe to
// repeat across runs.
func (c *Catalog) InsertPostPlaceholder(pk int64, postCode string, isTag bool) error {
	_, err := c.db.Exec(`INSERT INTO Post (pk, post_code, is_tag, number_of_items, caption, timestamp)
		VALUES (?, ?, ?, NULL, NULL, NULL)
		ON CONFLICT (pk, post_code, is_tag) DO NOTHING`,
		pk, postCode, isTag)
	if err != nil {
		return fmt.Errorf("inserting post placeholder: %w", err)
	}
	return nil
}

// GetPost fetches one post row
func (c *Catalog) GetPost(pk int64, postCode string, isTag bool) (*PostRecord, error) {
	row := c.db.QueryRow(`SELECT pk, post_code, is_tag, number_of_items, caption, timestamp
		FROM Post WHERE pk = ? AND post_code = ? AND is_tag = ?`, pk, postCode, isTag)

	var p PostRecord
	err := row.Scan(&p.PK, &p.PostCode, &p.IsTag, &p.NumberOfItems, &p.Caption, &p.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning post: %w", err)
	}
	return &p, nil
}

// ListPendingPosts returns the codes of placeholder posts (media not
// yet downloaded) for one profile and post kind.
func (c *Catalog) ListPendingPosts(pk int64, isTag bool) ([]string, error) {
	rows, err := c.db.Query(`SELECT post_code FROM Post
		WHERE pk = ? AND is_tag = ? AND number_of_items IS NULL`, pk, isTag)
	if err != nil {
		return nil, fmt.Errorf("listing pending posts: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning post code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// CompletePost fills in the media fields of a placeholder once its
// media has been downloaded.
func (c *Catalog) CompletePost(pk int64, postCode string, isTag bool, numberOfItems int64, caption sql.NullString, timestamp int64) error {
	_, err := c.db.Exec(`UPDATE Post SET number_of_items = ?, caption = ?, timestamp = ?
		WHERE pk = ? AND post_code = ? AND is_tag = ?`,
		numberOfItems, caption, timestamp, pk, postCode, isTag)
	if err != nil {
		return fmt.Errorf("completing post: %w", err)
	}
	return nil
}
