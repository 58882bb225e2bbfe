package models

// User is the read model of a registered user.
type User struct {
	ID        int     `db:"id" json:"id"`
	Email     string  `db:"email" json:"email"`
	FirstName *string `db:"first_name" json:"first_name"`
	Avatar    *string `db:"avatar" json:"avatar"`
	IsActive  bool    `db:"is_active" json:"is_active"`
}

// UserMinimal is the user shape embedded in every view payload.
type UserMinimal struct {
	ID        int     `db:"id" json:"id"`
	Avatar    *string `db:"avatar" json:"avatar"`
	FirstName *string `db:"first_name" json:"first_name"`
}
