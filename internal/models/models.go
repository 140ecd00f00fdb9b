package models

import (
	"time"
)

// DefaultImage is stored in Machine.ImageFile when a listing has no photo.
const DefaultImage = "default.jpg"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // bcrypt hash
	Phone     string    `json:"phone"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type Machine struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"` // per day
	Description string    `json:"description"`
	ImageFile   string    `json:"image_file"` // storage key under the upload dir
	ImageName   string    `json:"image_name"` // original file name, display only
	OwnerID     int64     `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`  // For display convenience
	OwnerPhone  string    `json:"owner_phone"` // For display convenience
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasImage reports whether the listing carries an uploaded photo.
func (m Machine) HasImage() bool {
	return m.ImageFile != "" && m.ImageFile != DefaultImage
}

// ImageURL is the public path of the listing photo.
func (m Machine) ImageURL() string {
	if !m.HasImage() {
		return "/static/default.svg"
	}
	return "/uploads/" + m.ImageFile
}

// CanModify reports whether u may edit or delete m.
func CanModify(u *User, m *Machine) bool {
	if u == nil || m == nil {
		return false
	}
	return u.ID == m.OwnerID || u.IsAdmin
}
