package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

const profileColumns = `pk, username, full_name, page_name, biography, is_private,
	public_email, media_count, follower_count, following_count, profile_id,
	last_post_code, last_tagged_post_code`

// ErrNotFound indicates the requested row does not exist
var ErrNotFound = errors.New("catalog: not found")

func scanProfile(row *sql.Row) (*ProfileRecord, error) {
	var p ProfileRecord
	err := row.Scan(&p.PK, &p.Username, &p.FullName, &p.PageName, &p.Biography,
		&p.IsPrivate, &p.PublicEmail, &p.MediaCount, &p.FollowerCount,
		&p.FollowingCount, &p.ProfileID, &p.LastPostCode, &p.LastTaggedPostCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}
	return &p, nil
}

// GetProfile fetches a profile row by its immutable pk
func (c *Catalog) GetProfile(pk int64) (*ProfileRecord, error) {
	row := c.db.QueryRow(`SELECT `+profileColumns+` FROM Profile WHERE pk = ?`, pk)
	return scanProfile(row)
}

// GetProfileByUsername fetches a profile row by its current username.
// Lookup convenience only; callers must key everything else on pk.
func (c *Catalog) GetProfileByUsername(username string) (*ProfileRecord, error) {
	row := c.db.QueryRow(`SELECT `+profileColumns+` FROM Profile WHERE username = ?`, username)
	return scanProfile(row)
}

// ListProfiles returns all profile rows ordered by username
func (c *Catalog) ListProfiles() ([]ProfileRecord, error) {
	rows, err := c.db.Query(`SELECT ` + profileColumns + ` FROM Profile ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []ProfileRecord
	for rows.Next() {
		var p ProfileRecord
		if err := rows.Scan(&p.PK, &p.Username, &p.FullName, &p.PageName, &p.Biography,
			&p.IsPrivate, &p.PublicEmail, &p.MediaCount, &p.FollowerCount,
			&p.FollowingCount, &p.ProfileID, &p.LastPostCode, &p.LastTaggedPostCode); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CreateProfile inserts a new profile row together with its live-feed
// Highlight row (highlight_id = pk) in one transaction, so story
// inserts against the live feed always satisfy the foreign key.
func (c *Catalog) CreateProfile(p *ProfileRecord) error {
	return c.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO Profile (`+profileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
			p.PK, p.Username, p.FullName, p.PageName, p.Biography, p.IsPrivate,
			p.PublicEmail, p.MediaCount, p.FollowerCount, p.FollowingCount, p.ProfileID)
		if err != nil {
			return fmt.Errorf("inserting profile: %w", err)
		}

		_, err = tx.Exec(`INSERT INTO Highlight (highlight_id, pk, title, number_of_items)
			VALUES (?, ?, 'Stories', 0)`, p.PK, p.PK)
		if err != nil {
			return fmt.Errorf("inserting live-feed highlight: %w", err)
		}
		return nil
	})
}

// UpdateProfile rewrites the mutable profile fields and, when
// oldProfileID is non-zero, appends the superseded avatar id to
// ProfileHistory in the same transaction.
func (c *Catalog) UpdateProfile(p *ProfileRecord, oldProfileID int64) error {
	return c.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE Profile SET username = ?, full_name = ?, page_name = ?,
			biography = ?, is_private = ?, public_email = ?, media_count = ?,
			follower_count = ?, following_count = ?, profile_id = ?
			WHERE pk = ?`,
			p.Username, p.FullName, p.PageName, p.Biography, p.IsPrivate,
			p.PublicEmail, p.MediaCount, p.FollowerCount, p.FollowingCount,
			p.ProfileID, p.PK)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}

		if oldProfileID != 0 {
			_, err = tx.Exec(`INSERT INTO ProfileHistory (pk, profile_id) VALUES (?, ?)`,
				p.PK, oldProfileID)
			if err != nil {
				return fmt.Errorf("appending profile history: %w", err)
			}
		}
		return nil
	})
}

// UpdateWatermark advances the pagination watermark for posts or
// tagged posts.
func (c *Catalog) UpdateWatermark(pk int64, isTag bool, postCode string) error {
	column := "last_post_code"
	if isTag {
		column = "last_tagged_post_code"
	}
	_, err := c.db.Exec(`UPDATE Profile SET `+column+` = ? WHERE pk = ?`, postCode, pk)
	if err != nil {
		return fmt.Errorf("updating watermark: %w", err)
	}
	return nil
}

// ListProfileHistory returns the superseded avatar ids for a profile
func (c *Catalog) ListProfileHistory(pk int64) ([]int64, error) {
	rows, err := c.db.Query(`SELECT profile_id FROM ProfileHistory WHERE pk = ?`, pk)
	if err != nil {
		return nil, fmt.Errorf("listing profile history: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning profile history: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
