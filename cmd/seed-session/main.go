package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/database"
	"github.com/stemsi/livesession-backend/internal/logger"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
	"github.com/stemsi/livesession-backend/internal/service"
)

// seed-session hosts a live session straight through the service layer and
// prints its join code.
func main() {
	var (
		hostID   string
		file     string
		activate bool
	)
	flag.StringVar(&hostID, "host", "teacher-dev", "Host user id that owns the session")
	flag.StringVar(&file, "file", "", "JSON file with a create-session payload (default: built-in sample lesson)")
	flag.BoolVar(&activate, "activate", false, "Start the session right away")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	sessions := service.NewLiveSessionService(
		repository.NewLiveSessionRepository(pool),
		service.NewContentCache(rdb, cfg.SessionCacheTTL, log),
		service.NewEventPublisher(rdb, log),
		rdb,
		cfg.JoinCodeAttempts,
		log,
	)

	req := sampleLesson()
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to read payload")
		}
		req = &model.CreateLiveSessionRequest{}
		if err := json.Unmarshal(data, req); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Payload is not a create-session request")
		}
	}

	session, err := sessions.CreateSession(ctx, hostID, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	if activate {
		if session, err = sessions.SetStatus(ctx, hostID, session.Code, model.LiveSessionStatusActive); err != nil {
			log.Fatal().Err(err).Msg("Failed to activate session")
		}
	}

	log.Info().
		Str("code", session.Code).
		Str("host_id", hostID).
		Str("status", string(session.Status)).
		Int("questions", len(session.Content.Questions)).
		Int("attention_checks", len(session.Content.AttentionChecks)).
		Msg("Session seeded")
	fmt.Println(session.Code)
}

func sampleLesson() *model.CreateLiveSessionRequest {
	return &model.CreateLiveSessionRequest{
		VideoURL:             "https://videos.example/photosynthesis.mp4",
		VideoDurationSeconds: 90,
		Content: model.SessionContent{
			Inquiry: model.InquiryContent{
				Hook:    "Where does a tree get the mass to grow?",
				Prompts: []string{"Is it from the soil?", "What do leaves take in from the air?"},
			},
			AttentionChecks: []model.AttentionCheck{
				{
					TimestampSeconds:    25,
					Question:            "Which gas do plants take in?",
					Choices:             []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"},
					CorrectChoiceLetter: "C",
				},
				{
					TimestampSeconds:    60,
					Question:            "Where does photosynthesis happen?",
					Choices:             []string{"Chloroplast", "Nucleus", "Ribosome", "Cell wall"},
					CorrectChoiceLetter: "A",
				},
			},
			Questions: []model.Question{
				{
					ID:                 "q1",
					Text:               "What is the main product of photosynthesis?",
					Choices:            []string{"Protein", "Glucose", "Salt", "Fat"},
					CorrectChoiceIndex: 1,
				},
				{
					ID:                 "q2",
					Text:               "Which energy source drives photosynthesis?",
					Choices:            []string{"Sunlight", "Heat from soil", "Wind", "Moonlight"},
					CorrectChoiceIndex: 0,
				},
				{
					ID:                 "q3",
					Text:               "Which gas is released?",
					Choices:            []string{"Carbon dioxide", "Methane", "Oxygen", "Hydrogen"},
					CorrectChoiceIndex: 2,
				},
			},
		},
	}
}
