package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/logger"
	"github.com/stemsi/livesession-backend/internal/service"
	"golang.org/x/term"
)

// issue-token mints host or student tokens for local development, standing
// in for the identity provider.
func main() {
	var (
		tokenType    string
		userID       string
		promptSecret bool
	)
	flag.StringVar(&tokenType, "type", "", "Token type: host or student")
	flag.StringVar(&userID, "user", "", "Opaque user id to embed")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	// Logs go to stderr so stdout carries only the token.
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	stdin := bufio.NewReader(os.Stdin)

	if tokenType == "" {
		fmt.Fprint(os.Stderr, "Token type (host/student, default host): ")
		line, _ := stdin.ReadString('\n')
		tokenType = strings.TrimSpace(line)
		if tokenType == "" {
			tokenType = string(service.TokenTypeHost)
		}
	}
	typ := service.TokenType(strings.ToLower(tokenType))
	if typ != service.TokenTypeHost && typ != service.TokenTypeStudent {
		log.Fatal().Str("type", tokenType).Msg("Token type must be host or student")
	}

	if userID == "" {
		fmt.Fprint(os.Stderr, "User ID: ")
		line, _ := stdin.ReadString('\n')
		userID = strings.TrimSpace(line)
		if userID == "" {
			log.Fatal().Msg("User ID is required")
		}
	}

	if promptSecret || os.Getenv("JWT_SECRET") == "" {
		fmt.Fprint(os.Stderr, "JWT secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if len(secret) > 0 {
			cfg.JWTSecret = string(secret)
		}
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).GenerateToken(typ, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().Str("type", string(typ)).Str("user_id", userID).Dur("expires_in", cfg.JWTExpiry).Msg("Token issued")
	fmt.Println(token)
}
