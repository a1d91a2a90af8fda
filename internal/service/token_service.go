package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type tokenStore interface {
	SetCurrent(ctx context.Context, token models.QRToken) error
	GetCurrent(ctx context.Context, sessionID string) (*models.QRToken, error)
	Find(ctx context.Context, sessionID, token string) (*models.QRToken, error)
	Purge(ctx context.Context, sessionID string) error
}

type tokenSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

// TokenService issues and validates the rotating QR tokens of active
// sessions. A background rotor per active session mints a fresh token every
// refresh interval; expiry is always computed from issuance time, so the
// client-observed countdown is advisory only.
type TokenService struct {
	store       tokenStore
	sessions    tokenSessionReader
	metrics     *MetricsService
	logger      *zap.Logger
	graceFactor float64
	now         func() time.Time

	mu     sync.Mutex
	rotors map[string]context.CancelFunc
}

// NewTokenService constructs the token issuer.
func NewTokenService(store tokenStore, sessions tokenSessionReader, graceFactor float64, metrics *MetricsService, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if graceFactor <= 0 {
		graceFactor = 1.0
	}
	return &TokenService{
		store:       store,
		sessions:    sessions,
		metrics:     metrics,
		logger:      logger,
		graceFactor: graceFactor,
		now:         func() time.Time { return time.Now().UTC() },
		rotors:      make(map[string]context.CancelFunc),
	}
}

// Issue mints a new current token for the session.
func (s *TokenService) Issue(ctx context.Context, session *models.AttendanceSession) (*models.QRToken, error) {
	value, err := randomToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint qr token")
	}
	issued := s.now()
	interval := session.QRInterval()
	grace := time.Duration(float64(interval) * s.graceFactor)
	token := models.QRToken{
		SessionID: session.ID,
		Token:     value,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(interval + grace),
	}
	if err := s.store.SetCurrent(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store qr token")
	}
	s.metrics.RecordTokenIssued()
	return &token, nil
}

// CurrentToken returns the live token for an active session, minting one
// when none exists yet (e.g. right after a restart, before the rotor's
// first tick).
func (s *TokenService) CurrentToken(ctx context.Context, sessionID string) (*models.QRToken, error) {
	session, err := s.loadActiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	token, err := s.store.GetCurrent(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qr token")
		}
		return s.Issue(ctx, session)
	}
	if s.now().After(token.ExpiresAt) {
		return s.Issue(ctx, session)
	}
	return token, nil
}

// Validate checks a scanned token against the session. Superseded tokens
// remain acceptable until their own expiry; anything older, or never
// issued, is rejected.
func (s *TokenService) Validate(ctx context.Context, sessionID, tokenValue string) error {
	if _, err := s.loadActiveSession(ctx, sessionID); err != nil {
		return err
	}

	token, err := s.store.Find(ctx, sessionID, tokenValue)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return appErrors.ErrTokenMismatch
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up qr token")
	}
	if s.now().After(token.ExpiresAt) {
		return appErrors.ErrTokenExpired
	}
	return nil
}

// StartRotation launches the background rotor for an active session. Safe
// to call again for the same session; the previous rotor is replaced.
func (s *TokenService) StartRotation(ctx context.Context, session *models.AttendanceSession) {
	rotorCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.rotors[session.ID]; ok {
		prev()
	}
	s.rotors[session.ID] = cancel
	s.mu.Unlock()

	interval := session.QRInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rotorCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.Issue(rotorCtx, session); err != nil {
					s.logger.Warn("token rotation failed",
						zap.String("session_id", session.ID), zap.Error(err))
				}
			}
		}
	}()
}

// StopRotation cancels the session's rotor and destroys its tokens.
func (s *TokenService) StopRotation(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if cancel, ok := s.rotors[sessionID]; ok {
		cancel()
		delete(s.rotors, sessionID)
	}
	s.mu.Unlock()

	if err := s.store.Purge(ctx, sessionID); err != nil {
		s.logger.Warn("failed to purge session tokens",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// StopAll cancels every rotor. Called during shutdown.
func (s *TokenService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.rotors {
		cancel()
		delete(s.rotors, id)
	}
}

func (s *TokenService) loadActiveSession(ctx context.Context, sessionID string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not active")
	}
	return session, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
