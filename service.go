package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownUser        = errors.New("service: unknown user")
	ErrUsernameTaken      = errors.New("service: username is already taken")
	ErrImageNotFound      = errors.New("service: image not found")
	ErrAccessDenied       = errors.New("service: access denied")
	ErrInvalidCredentials = errors.New("service: invalid credentials")
)

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
}

type ImageStore interface {
	CreateImage(ctx context.Context, img Image) (Image, error)
	GetImageByID(ctx context.Context, id int64) (Image, error)
	GetImageByDeleteHash(ctx context.Context, deleteHash string) (Image, error)
	DeleteImageByID(ctx context.Context, id int64) error
}

type UserService struct {
	users UserStore
	cost  int
}

func NewUserService(users UserStore, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}

	return &UserService{users: users, cost: bcryptCost}
}

// Register checks username uniqueness before performing any write.
func (s *UserService) Register(ctx context.Context, username, password, firstName, lastName, email string) (User, error) {
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return User{}, ErrUsernameTaken
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}

	return s.users.CreateUser(ctx, User{
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
	})
}

func (s *UserService) Login(ctx context.Context, username, password string) (User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUnknownUser
	}

	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

type ImageService struct {
	users  UserStore
	images ImageStore
	remote RemoteStore
}

func NewImageService(users UserStore, images ImageStore, remote RemoteStore) *ImageService {
	return &ImageService{
		users:  users,
		images: images,
		remote: remote,
	}
}

// Upload sends the image bytes to the remote store and records the returned
// link and delete hash. Nothing is written locally unless the remote upload
// succeeded.
func (s *ImageService) Upload(ctx context.Context, username string, image []byte) (Image, error) {
	user, err := s.resolveCaller(ctx, username)
	if err != nil {
		return Image{}, err
	}

	metadata, err := s.remote.Upload(ctx, image)
	if err != nil {
		return Image{}, fmt.Errorf("upload image: %w", err)
	}

	return s.images.CreateImage(ctx, Image{
		UserID:     user.ID,
		DeleteHash: metadata.DeleteHash,
		Link:       metadata.Link,
	})
}

// View returns the stored link for an image owned by the caller.
func (s *ImageService) View(ctx context.Context, username string, id int64) (string, error) {
	user, err := s.resolveCaller(ctx, username)
	if err != nil {
		return "", err
	}

	img, err := s.images.GetImageByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrImageNotFound
	}

	if err != nil {
		return "", err
	}

	if !ownsImage(img, user) {
		return "", ErrAccessDenied
	}

	return img.Link, nil
}

// Delete removes the remote image first; the local row is only deleted once
// the remote store confirmed.
func (s *ImageService) Delete(ctx context.Context, username, deleteHash string) error {
	user, err := s.resolveCaller(ctx, username)
	if err != nil {
		return err
	}

	img, err := s.images.GetImageByDeleteHash(ctx, deleteHash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrImageNotFound
	}

	if err != nil {
		return err
	}

	if !ownsImage(img, user) {
		return ErrAccessDenied
	}

	if _, err := s.remote.Delete(ctx, deleteHash); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	return s.images.DeleteImageByID(ctx, img.ID)
}

func (s *ImageService) resolveCaller(ctx context.Context, username string) (User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUnknownUser
	}

	return user, err
}

func ownsImage(img Image, u User) bool {
	return img.UserID == u.ID
}
