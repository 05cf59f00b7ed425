package engine

import (
	"database/sql"
	"errors"
	"path/filepath"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	"igarchive/pkg/instagram"
	"igarchive/pkg/media"
)

// SyncProfile fetches the current upstream profile snapshot and brings
// the catalog row, profile directory and avatar files in line with it.
// The directory rename happens before the catalog write and is
// reverted when that write fails, so the tree never points at a row
// that does not exist.
func (e *Engine) SyncProfile(username string) (*ProfileSync, error) {
	data, err := e.fetcher.FetchProfile(username)
	if err != nil {
		return nil, err
	}

	existing, err := e.catalog.GetProfile(data.PK)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return e.createProfile(data)
		}
		return nil, err
	}
	return e.updateProfile(existing, data)
}

func (e *Engine) createProfile(data *instagram.ProfileData) (*ProfileSync, error) {
	dir := e.tree.ProfileDir(data.Username, data.PK)

	// a crashed earlier run may have left a directory under an old name
	if stray := e.tree.FindProfileDir(data.PK); stray != "" && stray != dir {
		var err error
		dir, err = e.tree.RenameProfileDir(stray, data.Username, data.PK)
		if err != nil {
			return nil, err
		}
	}
	for _, sub := range []string{
		archive.ProfilesFolder, archive.PostsFolder, archive.TaggedFolder,
		archive.StoriesFolder, archive.HighlightsFolder,
	} {
		if err := archive.EnsureDir(filepath.Join(dir, sub)); err != nil {
			return nil, err
		}
	}

	if data.ProfileID != data.PK {
		if err := e.downloadAvatar(dir, data.AvatarURL); err != nil {
			return nil, err
		}
	}

	record := recordFromData(data)
	if err := e.catalog.CreateProfile(record); err != nil {
		archive.RemoveProfileFiles(dir)
		return nil, err
	}

	e.logger.InfoWithFields("profile archived", map[string]interface{}{
		"username": data.Username, "pk": data.PK,
	})
	return &ProfileSync{Profile: record, Status: StatusCreated, Dir: dir}, nil
}

func (e *Engine) updateProfile(existing *catalog.ProfileRecord, data *instagram.ProfileData) (*ProfileSync, error) {
	record := recordFromData(data)
	record.LastPostCode = existing.LastPostCode
	record.LastTaggedPostCode = existing.LastTaggedPostCode

	dir := e.tree.FindProfileDir(data.PK)
	if dir == "" {
		// tree was moved or pruned; recreate the skeleton
		dir = e.tree.ProfileDir(data.Username, data.PK)
		for _, sub := range []string{
			archive.ProfilesFolder, archive.PostsFolder, archive.TaggedFolder,
			archive.StoriesFolder, archive.HighlightsFolder,
		} {
			if err := archive.EnsureDir(filepath.Join(dir, sub)); err != nil {
				return nil, err
			}
		}
	}

	if sameProfile(existing, record) {
		return &ProfileSync{Profile: existing, Status: StatusUnchanged, Dir: dir}, nil
	}

	oldDir := dir
	if existing.Username != data.Username {
		var err error
		dir, err = e.tree.RenameProfileDir(dir, data.Username, data.PK)
		if err != nil {
			return nil, err
		}
	}

	var oldProfileID int64
	if existing.ProfileID != data.ProfileID {
		if existing.HasCustomAvatar() {
			oldProfileID = existing.ProfileID
			if err := archive.MoveProfileToHistory(dir, oldProfileID); err != nil {
				return nil, err
			}
		}
		if data.ProfileID != data.PK {
			if err := e.downloadAvatar(dir, data.AvatarURL); err != nil {
				return nil, err
			}
		}
	}

	if err := e.catalog.UpdateProfile(record, oldProfileID); err != nil {
		if dir != oldDir {
			// keep the tree consistent with the row that still holds
			// the old username
			if _, revertErr := e.tree.RenameProfileDir(dir, existing.Username, existing.PK); revertErr != nil {
				e.logger.WithError(revertErr).Error("failed to revert profile directory rename")
			}
		}
		return nil, err
	}

	e.logger.InfoWithFields("profile refreshed", map[string]interface{}{
		"username": data.Username, "pk": data.PK,
	})
	return &ProfileSync{Profile: record, Status: StatusUpdated, Dir: dir}, nil
}

// downloadAvatar stages the avatar and its circular thumbnail, then
// promotes them as Profiles/Profile.* in one go.
func (e *Engine) downloadAvatar(dir, avatarURL string) error {
	pair, err := e.stageMedia(avatarURL, e.sizes.AvatarSize, media.ShapeCircle)
	if err != nil {
		return err
	}
	return e.promote(pair, filepath.Join(dir, archive.ProfilesFolder), "Profile")
}

// recordFromData maps an upstream snapshot onto a catalog row
func recordFromData(data *instagram.ProfileData) *catalog.ProfileRecord {
	return &catalog.ProfileRecord{
		PK:             data.PK,
		Username:       data.Username,
		FullName:       data.FullName,
		PageName:       nullString(data.PageName),
		Biography:      nullString(data.Biography),
		IsPrivate:      data.IsPrivate,
		PublicEmail:    nullString(data.PublicEmail),
		MediaCount:     data.MediaCount,
		FollowerCount:  data.FollowerCount,
		FollowingCount: data.FollowingCount,
		ProfileID:      data.ProfileID,
	}
}

// sameProfile reports whether nothing the catalog tracks has changed
func sameProfile(a, b *catalog.ProfileRecord) bool {
	return a.Username == b.Username &&
		a.FullName == b.FullName &&
		a.PageName == b.PageName &&
		a.Biography == b.Biography &&
		a.IsPrivate == b.IsPrivate &&
		a.PublicEmail == b.PublicEmail &&
		a.MediaCount == b.MediaCount &&
		a.FollowerCount == b.FollowerCount &&
		a.FollowingCount == b.FollowingCount &&
		a.ProfileID == b.ProfileID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
