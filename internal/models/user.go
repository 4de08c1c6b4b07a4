package models

// UserFromAuth is the identity resolved from Telegram init data by the
// dashboard Authn middleware.
type UserFromAuth struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsPremium bool   `json:"is_premium"`
}
