package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// AttemptConfig holds the lifecycle policy knobs.
type AttemptConfig struct {
	ResumeTokenCost         int
	GradeTerminatedAttempts bool
}

// AttemptService owns the state machine of exam attempts.
type AttemptService struct {
	store   repository.Store
	exams   ExamProvider
	results *ResultService
	monitor *MonitorService
	cfg     AttemptConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	store repository.Store,
	exams ExamProvider,
	results *ResultService,
	monitor *MonitorService,
	cfg AttemptConfig,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		store:   store,
		exams:   exams,
		results: results,
		monitor: monitor,
		cfg:     cfg,
		log:     log.With().Str("component", "attempt_service").Logger(),
		now:     time.Now,
	}
}

// StartInput carries the caller context of a start request.
type StartInput struct {
	AccessCode string
	IPAddress  string
	UserAgent  string
}

// StartResult is returned by Start. ResumeToken is only set when a new
// attempt was created on an exam that allows resuming; it is never shown again.
type StartResult struct {
	Attempt     *model.Attempt `json:"attempt"`
	ResumeToken string         `json:"resume_token,omitempty"`
	Existing    bool           `json:"existing"`
}

// SubmitResult is the terminal attempt plus its result, when one exists yet.
type SubmitResult struct {
	Attempt *model.Attempt `json:"attempt"`
	Result  *model.Result  `json:"result,omitempty"`
}

// SessionView is everything a client needs to render a running attempt.
type SessionView struct {
	Attempt              *model.Attempt           `json:"attempt"`
	Exam                 model.ExamPayload        `json:"exam"`
	Answers              []model.AnswerForStudent `json:"answers"`
	TimeRemainingSeconds int                      `json:"time_remaining_seconds"`
}

func (s *AttemptService) logEvent(a *model.Attempt) *zerolog.Event {
	return s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Int("user_id", a.UserID)
}

func (s *AttemptService) publish(ctx context.Context, a *model.Attempt, typ, detail string) {
	s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
		Type:      typ,
		AttemptID: a.ID,
		UserID:    a.UserID,
		Status:    a.Status,
		Detail:    detail,
		At:        s.now(),
	})
}

func checkWindow(exam *model.Exam, now time.Time) error {
	if !exam.Status.IsOpen() {
		return ErrExamNotActive
	}
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return ErrExamNotYetOpen
	}
	if exam.ScheduledEnd != nil && !now.Before(*exam.ScheduledEnd) {
		return ErrExamClosed
	}
	return nil
}

// Start opens a new attempt, or returns the user's open one unchanged.
// Answer rows for every question and, for monitored exams, the proctoring
// session are created in the same transaction.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, userID int, in StartInput) (*StartResult, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := checkWindow(exam, now); err != nil {
		return nil, err
	}
	if exam.AccessCode != "" &&
		subtle.ConstantTimeCompare([]byte(exam.AccessCode), []byte(in.AccessCode)) != 1 {
		return nil, ErrInvalidAccessCode
	}

	out := &StartResult{}
	err = s.store.Tx(ctx, func(q repository.Querier) error {
		if err := q.LockExamUser(ctx, examID, userID); err != nil {
			return fmt.Errorf("lock exam user: %w", err)
		}

		existing, err := q.GetOpenAttempt(ctx, examID, userID)
		if err == nil {
			out.Attempt = existing
			out.Existing = true
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find open attempt: %w", err)
		}

		total, finished, err := q.CountAttempts(ctx, examID, userID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if exam.MaxAttempts > 0 && finished >= exam.MaxAttempts {
			return ErrAlreadyMaxAttempts
		}

		a := &model.Attempt{
			ID:                   uuid.New(),
			ExamID:               examID,
			UserID:               userID,
			AttemptNumber:        total + 1,
			Status:               model.AttemptStatusInProgress,
			StartedAt:            now,
			ExpiresAt:            now.Add(exam.Duration()),
			TimeRemainingSeconds: exam.DurationMinutes * 60,
			QuestionOrder:        questionOrder(exam),
			IPAddress:            in.IPAddress,
			UserAgent:            in.UserAgent,
		}

		if exam.AllowResume {
			token, hash, err := newResumeToken(s.cfg.ResumeTokenCost)
			if err != nil {
				return err
			}
			a.ResumeTokenHash = hash
			out.ResumeToken = token
		}

		if err := q.CreateAttempt(ctx, a); err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}

		answers := make([]model.Answer, len(exam.Questions))
		for i, question := range exam.Questions {
			answers[i] = model.Answer{
				ID:            uuid.New(),
				AttemptID:     a.ID,
				QuestionID:    question.ID,
				GradingStatus: model.GradingStatusPending,
				CreatedAt:     now,
			}
		}
		if err := q.CreateAnswers(ctx, answers); err != nil {
			return fmt.Errorf("create answers: %w", err)
		}

		if exam.CheatRules.RequiresMonitoring() {
			if err := q.CreateSession(ctx, newSession(a.ID, now)); err != nil {
				return fmt.Errorf("open proctoring session: %w", err)
			}
		}

		out.Attempt = a
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent start won the unique index; hand back its attempt.
		existing, ferr := s.store.GetOpenAttempt(ctx, examID, userID)
		if ferr != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", ferr)
		}
		return &StartResult{Attempt: existing, Existing: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if !out.Existing {
		s.logEvent(out.Attempt).Int("attempt_number", out.Attempt.AttemptNumber).Msg("Attempt started")
		s.publish(ctx, out.Attempt, MonitorAttemptStarted, "")
	}
	return out, nil
}

func questionOrder(exam *model.Exam) []uuid.UUID {
	order := make([]uuid.UUID, len(exam.Questions))
	for i := range exam.Questions {
		order[i] = exam.Questions[i].ID
	}
	if exam.RandomizeQuestions {
		mrand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

func newResumeToken(cost int) (token, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate resume token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", "", fmt.Errorf("hash resume token: %w", err)
	}
	return token, string(h), nil
}

// finishLocked moves a locked attempt to a terminal status, closes its
// proctoring session and grades it. Grading and the status change commit
// together or not at all.
func (s *AttemptService) finishLocked(ctx context.Context, q repository.Querier, exam *model.Exam, a *model.Attempt, status model.AttemptStatus, reason *model.SubmitReason, now time.Time) (*model.Result, error) {
	a.Status = status
	a.SubmittedAt = &now
	a.SubmitReason = reason
	a.TimeRemainingSeconds = a.RemainingAt(now)
	if status == model.AttemptStatusAutoSubmitted || status == model.AttemptStatusExpired {
		a.TimeRemainingSeconds = 0
	}
	if err := q.UpdateAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}
	if err := q.CloseSession(ctx, a.ID, now); err != nil {
		return nil, fmt.Errorf("close proctoring session: %w", err)
	}
	return s.results.gradeLocked(ctx, q, exam, a)
}

// Resume puts a paused attempt back in progress. An attempt whose time ran
// out becomes expired and is graded instead.
func (s *AttemptService) Resume(ctx context.Context, attemptID uuid.UUID, userID int, token string) (*model.Attempt, error) {
	var (
		a       *model.Attempt
		expired bool
	)
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		var err error
		if a, err = lockAttempt(ctx, q, attemptID); err != nil {
			return err
		}
		if a.UserID != userID {
			return ErrUnauthorized
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		if !exam.AllowResume {
			return ErrResumeNotAllowed
		}
		if a.Status.IsTerminal() {
			return ErrAttemptNotActive
		}

		now := s.now()
		if a.ExpiredAt(now) {
			expired = true
			_, err := s.finishLocked(ctx, q, exam, a, model.AttemptStatusExpired, nil, now)
			return err
		}

		if token != "" && a.ResumeTokenHash != "" &&
			bcrypt.CompareHashAndPassword([]byte(a.ResumeTokenHash), []byte(token)) != nil {
			return ErrUnauthorized
		}

		if a.Status == model.AttemptStatusPaused {
			a.Status = model.AttemptStatusInProgress
			a.TimeRemainingSeconds = a.RemainingAt(now)
			if err := q.UpdateAttempt(ctx, a); err != nil {
				return fmt.Errorf("update attempt: %w", err)
			}
		}
		if _, err := q.TouchSession(ctx, a.ID, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.logEvent(a).Msg("Attempt expired on resume")
		s.publish(ctx, a, MonitorAttemptExpired, "")
		return nil, ErrAttemptExpired
	}
	s.logEvent(a).Msg("Attempt resumed")
	s.publish(ctx, a, MonitorAttemptResumed, "")
	return a, nil
}

// Pause moves an in-progress attempt to paused. The deadline keeps running.
func (s *AttemptService) Pause(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, error) {
	var (
		a       *model.Attempt
		expired bool
	)
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		var err error
		if a, err = lockAttempt(ctx, q, attemptID); err != nil {
			return err
		}
		if a.UserID != userID {
			return ErrUnauthorized
		}
		if a.Status != model.AttemptStatusInProgress {
			return ErrAttemptNotActive
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		now := s.now()
		if a.ExpiredAt(now) {
			expired = true
			reason := model.SubmitReasonAuto
			_, err := s.finishLocked(ctx, q, exam, a, reason.TerminalStatus(), &reason, now)
			return err
		}
		if !exam.AllowResume {
			return ErrResumeNotAllowed
		}

		a.Status = model.AttemptStatusPaused
		a.TimeRemainingSeconds = a.RemainingAt(now)
		if err := q.UpdateAttempt(ctx, a); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.logEvent(a).Msg("Attempt auto-submitted on pause")
		s.publish(ctx, a, MonitorAttemptSubmitted, string(model.SubmitReasonAuto))
		return nil, ErrAttemptExpired
	}
	s.logEvent(a).Msg("Attempt paused")
	s.publish(ctx, a, MonitorAttemptPaused, "")
	return a, nil
}

// GetSession returns the attempt with its ordered questions and saved
// answers. An in-progress attempt past its deadline is auto-submitted first.
func (s *AttemptService) GetSession(ctx context.Context, attemptID uuid.UUID, userID int) (*SessionView, error) {
	a, err := getAttempt(ctx, s.store, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if a.Status == model.AttemptStatusInProgress && a.ExpiredAt(now) {
		if _, err := s.Submit(ctx, attemptID, userID, model.SubmitReasonAuto); err != nil &&
			!errors.Is(err, ErrAlreadySubmitted) {
			return nil, err
		}
		if a, err = getAttempt(ctx, s.store, attemptID); err != nil {
			return nil, err
		}
	}

	exam, err := s.exams.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	view := &SessionView{
		Attempt:              a,
		Exam:                 Payload(exam, a.QuestionOrder),
		Answers:              []model.AnswerForStudent{},
		TimeRemainingSeconds: a.TimeRemainingSeconds,
	}
	if a.Status.IsOpen() {
		view.TimeRemainingSeconds = min(a.TimeRemainingSeconds, a.RemainingAt(now))
	}
	if err := copier.Copy(&view.Answers, &answers); err != nil {
		return nil, fmt.Errorf("project answers: %w", err)
	}
	return view, nil
}

// UpdateProgress records the student's position and elapsed time. When no
// time is left the attempt is auto-submitted in the same transaction.
func (s *AttemptService) UpdateProgress(ctx context.Context, attemptID uuid.UUID, userID int, req *model.UpdateProgressRequest) (*SubmitResult, error) {
	out := &SubmitResult{}
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		a, err := lockAttempt(ctx, q, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != userID {
			return ErrUnauthorized
		}
		if a.Status != model.AttemptStatusInProgress {
			return ErrAttemptNotActive
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		if req.CurrentQuestionIndex >= len(exam.Questions) {
			return ErrInvalidProgress
		}

		now := s.now()
		remaining := max(0, min(exam.DurationMinutes*60-req.ElapsedSeconds, a.RemainingAt(now)))
		out.Attempt = a

		if remaining == 0 {
			reason := model.SubmitReasonAuto
			a.CurrentQuestionIndex = req.CurrentQuestionIndex
			out.Result, err = s.finishLocked(ctx, q, exam, a, reason.TerminalStatus(), &reason, now)
			return err
		}

		a.CurrentQuestionIndex = req.CurrentQuestionIndex
		a.TimeRemainingSeconds = remaining
		if err := q.UpdateAttempt(ctx, a); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Attempt.Status.IsTerminal() {
		s.logEvent(out.Attempt).Msg("Attempt auto-submitted, time exhausted")
		s.publish(ctx, out.Attempt, MonitorAttemptSubmitted, string(model.SubmitReasonAuto))
	}
	return out, nil
}

// Submit finishes an attempt and grades it. Only the first call succeeds;
// later calls fail with ErrAlreadySubmitted and change nothing. Ownership is
// only checked for manual submissions.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, userID int, reason model.SubmitReason) (*SubmitResult, error) {
	out := &SubmitResult{}
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		a, err := lockAttempt(ctx, q, attemptID)
		if err != nil {
			return err
		}
		if reason == model.SubmitReasonManual && a.UserID != userID {
			return ErrUnauthorized
		}
		if a.Status.IsTerminal() {
			return ErrAlreadySubmitted
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		out.Attempt = a
		out.Result, err = s.finishLocked(ctx, q, exam, a, reason.TerminalStatus(), &reason, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	ev := s.logEvent(out.Attempt).Str("reason", string(reason))
	if out.Result != nil {
		ev = ev.Float64("marks_obtained", out.Result.MarksObtained)
	}
	ev.Msg("Attempt submitted")
	s.publish(ctx, out.Attempt, MonitorAttemptSubmitted, string(reason))
	return out, nil
}

// Terminate force-ends an in-progress attempt on behalf of a reviewer and
// writes a critical event recording who and why. Grading follows the
// GradeTerminatedAttempts policy.
func (s *AttemptService) Terminate(ctx context.Context, attemptID uuid.UUID, actorID int, reason string) (*SubmitResult, error) {
	out := &SubmitResult{}
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		a, err := lockAttempt(ctx, q, attemptID)
		if err != nil {
			return err
		}
		if a.Status != model.AttemptStatusInProgress {
			return ErrNotTerminable
		}

		now := s.now()
		a.Status = model.AttemptStatusTerminated
		a.TerminatedBy = &actorID
		a.TerminationReason = &reason
		a.SubmittedAt = &now
		a.TimeRemainingSeconds = a.RemainingAt(now)
		if err := q.UpdateAttempt(ctx, a); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		out.Attempt = a

		ev := &model.ProctoringEvent{
			ID:         uuid.New(),
			AttemptID:  a.ID,
			EventType:  model.EventAttemptTerminated,
			Severity:   model.SeverityCritical,
			EventData:  terminationData(actorID, reason),
			DetectedAt: now,
		}
		sess, err := q.GetSession(ctx, a.ID)
		switch {
		case err == nil:
			ev.SessionID = &sess.ID
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("get session: %w", err)
		}
		if err := q.InsertEvent(ctx, ev); err != nil {
			return fmt.Errorf("insert termination event: %w", err)
		}
		if err := q.CloseSession(ctx, a.ID, now); err != nil {
			return fmt.Errorf("close proctoring session: %w", err)
		}

		if !s.cfg.GradeTerminatedAttempts {
			return nil
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		out.Result, err = s.results.gradeLocked(ctx, q, exam, a)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(out.Attempt).Int("terminated_by", actorID).Str("reason", reason).Msg("Attempt terminated")
	s.publish(ctx, out.Attempt, MonitorAttemptTerminated, reason)
	return out, nil
}

func terminationData(actorID int, reason string) []byte {
	data, _ := json.Marshal(map[string]any{"actor_id": actorID, "reason": reason})
	return data
}

// Flag marks an attempt for review. Allowed in any status.
func (s *AttemptService) Flag(ctx context.Context, attemptID uuid.UUID, actorID int, reason string) (*model.Attempt, error) {
	var a *model.Attempt
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		var err error
		if a, err = lockAttempt(ctx, q, attemptID); err != nil {
			return err
		}
		a.IsFlagged = true
		a.FlagReason = &reason
		if err := q.UpdateAttempt(ctx, a); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(a).Int("flagged_by", actorID).Str("reason", reason).Msg("Attempt flagged")
	s.publish(ctx, a, MonitorAttemptFlagged, reason)
	return a, nil
}

// ensureActive loads an attempt for a student write. An in-progress attempt
// past its deadline is auto-submitted and reported as expired.
func (s *AttemptService) ensureActive(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, error) {
	a, err := getAttempt(ctx, s.store, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrUnauthorized
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotActive
	}
	if a.ExpiredAt(s.now()) {
		if _, err := s.Submit(ctx, attemptID, userID, model.SubmitReasonAuto); err != nil &&
			!errors.Is(err, ErrAlreadySubmitted) {
			return nil, err
		}
		return nil, ErrAttemptExpired
	}
	return a, nil
}

// SweepExpired auto-submits up to limit in-progress attempts whose deadline
// has passed and returns how many it finished.
func (s *AttemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListExpiredAttemptIDs(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Submit(ctx, id, 0, model.SubmitReasonAuto); err != nil {
			if !errors.Is(err, ErrAlreadySubmitted) {
				s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Failed to auto-submit expired attempt")
			}
			continue
		}
		done++
	}
	return done, nil
}
