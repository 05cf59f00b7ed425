package catalog

import "database/sql"

// ProfileRecord mirrors one row of the Profile table. pk is the only
// stable join key; username is a display value that can change upstream.
type ProfileRecord struct {
	PK                 int64
	Username           string
	FullName           string
	PageName           sql.NullString
	Biography          sql.NullString
	IsPrivate          bool
	PublicEmail        sql.NullString
	MediaCount         int64
	FollowerCount      int64
	FollowingCount     int64
	ProfileID          int64
	LastPostCode       sql.NullString
	LastTaggedPostCode sql.NullString
}

// HasCustomAvatar reports whether the profile ever had a non-default
// avatar; pk == profile_id is the "never customized" sentinel.
func (p *ProfileRecord) HasCustomAvatar() bool {
	return p.PK != p.ProfileID
}

// PostRecord mirrors one row of the Post table. NULL media fields mean
// "known to exist, not yet downloaded", not "no value".
type PostRecord struct {
	PK            int64
	PostCode      string
	IsTag         bool
	NumberOfItems sql.NullInt64
	Caption       sql.NullString
	Timestamp     sql.NullInt64
}

// Pending reports whether the post is still a placeholder
func (p *PostRecord) Pending() bool {
	return !p.NumberOfItems.Valid
}

// HighlightRecord mirrors one row of the Highlight table. The live
// story feed is the row whose highlight_id equals the profile pk.
type HighlightRecord struct {
	HighlightID   int64
	PK            int64
	Title         string
	NumberOfItems int64
}

// IsLiveFeed reports whether this row is the live-feed sentinel
func (h *HighlightRecord) IsLiveFeed() bool {
	return h.HighlightID == h.PK
}

// StoryRecord mirrors one row of the Story table. A single upstream
// item can have one row per highlight it has ever belonged to.
type StoryRecord struct {
	PK          int64
	StoryPK     int64
	HighlightID int64
	Timestamp   int64
}
