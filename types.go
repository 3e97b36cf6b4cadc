package main

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
}

type Image struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	DeleteHash string `json:"delete_hash"`
	Link       string `json:"link"`
}
