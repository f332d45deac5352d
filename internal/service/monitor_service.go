package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/scoring"
)

// MonitorService builds the teacher dashboard.
type MonitorService struct {
	sessions     *LiveSessionService
	participants *ParticipantService
	responses    ResponseStore
	checks       CheckStore
	scrubs       ScrubStore
	progress     *ProgressService
	log          zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	sessions *LiveSessionService,
	participants *ParticipantService,
	responses ResponseStore,
	checks CheckStore,
	scrubs ScrubStore,
	progress *ProgressService,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		sessions:     sessions,
		participants: participants,
		responses:    responses,
		checks:       checks,
		scrubs:       scrubs,
		progress:     progress,
		log:          log.With().Str("component", "monitor_service").Logger(),
	}
}

// DashboardRow is one leaderboard line with live progress attached.
type DashboardRow struct {
	scoring.Standing
	CurrentQuestionIndex int     `json:"current_question_index"`
	ChecksCompleted      int     `json:"checks_completed"`
	ScrubCount           int     `json:"scrub_count"`
	VideoPositionSeconds float64 `json:"video_position_seconds"`
}

// DashboardStats aggregates the room.
type DashboardStats struct {
	TotalParticipants int                 `json:"total_participants"`
	ByPhase           map[model.Phase]int `json:"by_phase"`
	TotalResponses    int                 `json:"total_responses"`
	TotalScrubs       int                 `json:"total_scrubs"`
}

// Dashboard is a full teacher snapshot of one session.
type Dashboard struct {
	Session     *model.LiveSession     `json:"session"`
	Stats       DashboardStats         `json:"stats"`
	Leaderboard []DashboardRow         `json:"leaderboard"`
	Accuracy    []scoring.QuestionStat `json:"accuracy"`
}

// Dashboard fetches participants, responses and progress concurrently.
// Participants and responses are required; check counts, scrub counts and
// live positions are best-effort and default to zero.
func (s *MonitorService) Dashboard(ctx context.Context, hostID, code string) (*Dashboard, error) {
	session, err := s.sessions.Owned(ctx, hostID, code)
	if err != nil {
		return nil, err
	}

	var (
		participants []model.Participant
		responses    []model.Response
		checkCounts  map[uuid.UUID]int
		scrubCounts  map[uuid.UUID]int
		positions    map[uuid.UUID]float64

		participantsErr error
		responsesErr    error
		checksErr       error
		scrubsErr       error
		positionsErr    error
		wg              sync.WaitGroup
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		participants, participantsErr = s.participants.ListBySessionCode(ctx, session.Code)
	}()
	go func() {
		defer wg.Done()
		responses, responsesErr = s.responses.ListBySessionCode(ctx, session.Code)
	}()
	go func() {
		defer wg.Done()
		checkCounts, checksErr = s.checks.CountsBySession(ctx, session.ID)
	}()
	go func() {
		defer wg.Done()
		scrubCounts, scrubsErr = s.scrubs.CountsBySession(ctx, session.ID)
	}()
	go func() {
		defer wg.Done()
		positions, positionsErr = s.progress.Positions(ctx, session.Code)
	}()
	wg.Wait()

	if participantsErr != nil {
		return nil, participantsErr
	}
	if responsesErr != nil {
		return nil, responsesErr
	}
	for name, err := range map[string]error{"checks": checksErr, "scrubs": scrubsErr, "positions": positionsErr} {
		if err != nil {
			s.log.Warn().Err(err).Str("part", name).Str("code", session.Code).Msg("Dashboard part unavailable")
		}
	}

	byID := make(map[uuid.UUID]*model.Participant, len(participants))
	for i := range participants {
		byID[participants[i].ID] = &participants[i]
	}

	standings := scoring.Leaderboard(participants)
	rows := make([]DashboardRow, 0, len(standings))
	stats := DashboardStats{
		TotalParticipants: len(participants),
		ByPhase:           make(map[model.Phase]int),
		TotalResponses:    len(responses),
	}
	for _, st := range standings {
		p := byID[st.ParticipantID]
		row := DashboardRow{
			Standing:             st,
			CurrentQuestionIndex: p.CurrentQuestionIndex,
			ChecksCompleted:      checkCounts[st.ParticipantID],
			ScrubCount:           scrubCounts[st.ParticipantID],
			VideoPositionSeconds: p.VideoPositionSeconds,
		}
		if pos, ok := positions[st.ParticipantID]; ok {
			row.VideoPositionSeconds = pos
		}
		stats.ByPhase[p.Phase]++
		stats.TotalScrubs += row.ScrubCount
		rows = append(rows, row)
	}

	return &Dashboard{
		Session:     session,
		Stats:       stats,
		Leaderboard: rows,
		Accuracy:    scoring.QuestionAccuracy(session.Content.Questions, responses),
	}, nil
}
