package domain

import "time"

type User struct {
	ID        int64      `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Name      string     `db:"name" json:"name"`
	IsActive  bool       `db:"is_active" json:"isActive"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
