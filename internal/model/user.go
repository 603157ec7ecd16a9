package model

import "time"

// User represents a shop customer as persisted by the credential store.
// The same struct is used by every store driver; the bson tags describe the
// document layout in the `users` collection and the MySQL repository maps
// the fields onto columns of the `users` table.
//
// Fields:
//
//	ID                  – store identifier (ObjectID hex or numeric id as text).
//	Email               – unique, lower-cased email address.
//	PasswordHash        – bcrypt hash of the password.
//	ResetToken          – pending password reset token, empty when none.
//	ResetTokenExpiresAt – expiry of ResetToken (nil when none).
//	Cart                – products placed in the cart.
//	CreatedAt/UpdatedAt – bookkeeping timestamps.
type User struct {
	ID                  string     `bson:"-"`
	Email               string     `bson:"email"`
	PasswordHash        string     `bson:"password"`
	ResetToken          string     `bson:"resetToken,omitempty"`
	ResetTokenExpiresAt *time.Time `bson:"resetTokenExpiration,omitempty"`
	Cart                Cart       `bson:"cart"`
	CreatedAt           time.Time  `bson:"createdAt"`
	UpdatedAt           time.Time  `bson:"updatedAt"`
}

// Cart holds the items of a user's shopping cart. Cart mutation belongs to
// the shop side of the application; the auth pipeline only creates users
// with an empty cart.
type Cart struct {
	Items []CartItem `bson:"items" json:"items"`
}

// CartItem references a product and the quantity placed in the cart.
type CartItem struct {
	ProductID string `bson:"productId" json:"product_id"`
	Quantity  int    `bson:"quantity" json:"quantity"`
}

// HasLiveResetToken reports whether token matches the user's pending reset
// token and that token has not expired at now.
func (u User) HasLiveResetToken(token string, now time.Time) bool {
	if u.ResetToken == "" || token == "" || u.ResetTokenExpiresAt == nil {
		return false
	}
	return u.ResetToken == token && now.Before(*u.ResetTokenExpiresAt)
}
