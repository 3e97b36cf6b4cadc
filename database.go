package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "embed"

	"golang.org/x/exp/slog"
)

//go:embed schema.sql
var schema string

type PostgreSQLDatabase struct {
	db *sql.DB
}

func NewPostgreSQLDatabase() (*PostgreSQLDatabase, error) {
	var (
		user     = os.Getenv("POSTGRES_USER")
		password = os.Getenv("POSTGRES_PASSWORD")
		port     = os.Getenv("DB_PORT")
		connStr  = fmt.Sprintf("user=%s password=%s port=%s dbname=db sslmode=disable", user, password, port)
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	pg := &PostgreSQLDatabase{db: db}
	if err := pg.db.Ping(); err != nil {
		return nil, err
	}

	slog.Debug("Database pinged")

	if _, err := pg.db.ExecContext(context.Background(), schema); err != nil {
		slog.Debug("Failed to create database schema", "error", err)
	} else {
		slog.Info("Successfully created the database schema")
	}

	return pg, nil
}

func (pq *PostgreSQLDatabase) CreateUser(ctx context.Context, u User) (User, error) {
	const createUser = `
	INSERT INTO users (username, password_hash, first_name, last_name, email)
	VALUES($1, $2, $3, $4, $5)
	RETURNING id, username, password_hash, first_name, last_name, email
	`

	row := pq.db.QueryRowContext(ctx, createUser, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.FirstName,
		&i.LastName,
		&i.Email,
	)

	return i, err
}

func (pq *PostgreSQLDatabase) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const getUserByUsername = `
	SELECT
		id,
    	username,
    	password_hash,
    	first_name,
    	last_name,
    	email
	FROM users
	WHERE username = $1
	`

	row := pq.db.QueryRowContext(ctx, getUserByUsername, username)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.FirstName,
		&i.LastName,
		&i.Email,
	)

	return i, err
}

func (pq *PostgreSQLDatabase) CreateImage(ctx context.Context, img Image) (Image, error) {
	const createImage = `
	INSERT INTO images(user_id, delete_hash, link)
	VALUES($1, $2, $3)
	RETURNING id, user_id, delete_hash, link
	`

	row := pq.db.QueryRowContext(ctx, createImage, img.UserID, img.DeleteHash, img.Link)
	var i Image
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.DeleteHash,
		&i.Link,
	)

	return i, err
}

func (pq *PostgreSQLDatabase) GetImageByID(ctx context.Context, id int64) (Image, error) {
	const getImageByID = `
	SELECT
		id,
    	user_id,
    	delete_hash,
    	link
	FROM images
	WHERE id = $1
	`

	row := pq.db.QueryRowContext(ctx, getImageByID, id)
	var i Image
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.DeleteHash,
		&i.Link,
	)

	return i, err
}

func (pq *PostgreSQLDatabase) GetImageByDeleteHash(ctx context.Context, deleteHash string) (Image, error) {
	const getImageByDeleteHash = `
	SELECT
		id,
    	user_id,
    	delete_hash,
    	link
	FROM images
	WHERE delete_hash = $1
	`

	row := pq.db.QueryRowContext(ctx, getImageByDeleteHash, deleteHash)
	var i Image
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.DeleteHash,
		&i.Link,
	)

	return i, err
}

func (pq *PostgreSQLDatabase) DeleteImageByID(ctx context.Context, id int64) error {
	const deleteImageByID = `
	DELETE from images
	WHERE id = $1
	`

	_, err := pq.db.ExecContext(ctx, deleteImageByID, id)

	return err
}
