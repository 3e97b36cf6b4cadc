package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	}))

	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Error("Failed to load environment", "error", err)
		os.Exit(1)
	}

	db, err := NewPostgreSQLDatabase()
	if err != nil {
		slog.Error("Failed to init the database", "error", err)
		os.Exit(1)
	}

	bcryptCost, _ := strconv.Atoi(os.Getenv("BCRYPT_COST"))

	var (
		imgur  = NewImgurClient(os.Getenv("IMGUR_BASE_URL"), os.Getenv("IMGUR_CLIENT_ID"))
		users  = NewUserService(db, bcryptCost)
		images = NewImageService(db, db, imgur)
	)

	server := NewAPIServer(users, images, os.Getenv("APP_HOST")+":"+os.Getenv("APP_PORT"))
	if err := server.Run(); err != nil {
		slog.Error("Server run error", "error", err)
		os.Exit(1)
	}
}
