package models

// User is an account row. PasswordHash never leaves the server.
type User struct {
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password" json:"-"`
	Profile
}

// Profile is the mutable part of a user.
type Profile struct {
	Bio        string `db:"bio" json:"bio"`
	AvatarURL  string `db:"avatar_url" json:"avatar_url"`
	Status     string `db:"status" json:"status"`
	Theme      string `db:"theme" json:"theme"`
	Wallpaper  string `db:"wallpaper" json:"wallpaper"`
	RealName   string `db:"real_name" json:"real_name"`
	Location   string `db:"location" json:"location"`
	BirthDate  string `db:"birth_date" json:"birth_date"`
	SocialLink string `db:"social_link" json:"social_link"`
	IsAdmin    bool   `db:"is_admin" json:"is_admin"`
}

// Author returns the snapshot joined onto messages.
func (p Profile) Author() AuthorProfile {
	return AuthorProfile{AvatarURL: p.AvatarURL, Bio: p.Bio, IsAdmin: p.IsAdmin}
}
