package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/matchdaybot/matchday/common/environment"
	"github.com/matchdaybot/matchday/common/version"
	"github.com/matchdaybot/matchday/internal/matchday/app"
	"github.com/matchdaybot/matchday/internal/matchday/matrix"
	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
)

func main() {
	fmt.Printf("Matchday Team Bot\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	// Load .env if present; real environment variables take precedence.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded configuration from .env")
	}

	// Load configuration from environment
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Create application
	matchday, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Matchday: %v\n", err)
		os.Exit(1)
	}
	defer matchday.Stop()

	// Run application
	if err := matchday.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Matchday: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	mainRoom, err := environment.RequiredString("MATCHDAY_MAIN_ROOM")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("MATCHDAY_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./matchday.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
		},
		MainRoom:        mainRoom,
		LeadershipRooms: environment.StringSliceOr("MATCHDAY_LEADERSHIP_ROOMS", nil),
		PrivateChats:    environment.StringSliceOr("MATCHDAY_PRIVATE_CHATS", nil),
		Reasoning: reasoning.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("MATCHDAY_API_ENDPOINT", ""),
			Model:   environment.StringOr("MATCHDAY_MODEL", ""),
		},
		RateLimit:      environment.IntOr("MATCHDAY_RATE_LIMIT", 0),
		TokenBudget:    environment.IntOr("MATCHDAY_TOKEN_BUDGET", 0),
		ExecuteBudget:  environment.DurationOr("MATCHDAY_EXECUTE_BUDGET", 0),
		MemoryCooldown: environment.DurationOr("MATCHDAY_MEMORY_COOLDOWN", 0),
		HTTPAddr:       environment.StringOr("HTTP_ADDR", ""),
	}, nil
}
