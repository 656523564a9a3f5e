package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

User is the profile row of an authenticated identity, table "users".

Id: primary key, equals the auth provider's user id
CreatedAt: time when entity is created
UpdatedAt: time when the profile was last edited

Email: contact email, copied from the identity on creation
Username: display name, unique across users
FirstName, LastName: may be empty
AvatarUrl: public url of the uploaded avatar, nil when never uploaded
Metadata: free-form profile metadata submitted on registration

*/

type User struct {
	Id        string         `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Email     string         `json:"email"`
	Username  string         `gorm:"uniqueIndex" json:"username"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	AvatarUrl *string        `json:"avatarUrl"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
}
