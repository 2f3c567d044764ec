package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"expense-api/internal/lib/jwt"
	"expense-api/internal/lib/logger"
	"expense-api/internal/models"
	"expense-api/internal/services"
	"expense-api/internal/storage"
	"expense-api/internal/transcribe"
)

const userIDContextKey contextKey = "user_id"

// Transcriber converts an audio stream to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Speech serves the speech-to-text API.
type Speech struct {
	log         *slog.Logger
	db          *storage.DB
	users       *services.Directory
	transcriber Transcriber
	uploads     *transcribe.Uploads
	secret      string
	tokenTTL    time.Duration
	maxUpload   int64
}

// SpeechOptions configures NewSpeech.
type SpeechOptions struct {
	Secret         string
	TokenTTL       time.Duration
	MaxUploadBytes int64
}

func NewSpeech(log *slog.Logger, db *storage.DB, client Transcriber, uploads *transcribe.Uploads, opts SpeechOptions) *Speech {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	return &Speech{
		log:         log,
		db:          db,
		users:       services.NewDirectory(log, db, services.NewVerifier(opts.Secret, 0), ""),
		transcriber: client,
		uploads:     uploads,
		secret:      opts.Secret,
		tokenTTL:    opts.TokenTTL,
		maxUpload:   opts.MaxUploadBytes,
	}
}

// userIDFromToken resolves the bearer token, if any. ok is false when a
// token was sent but did not verify.
func (s *Speech) userIDFromToken(r *http.Request) (id int64, present, ok bool) {
	token := bearerToken(r)
	if token == "" {
		return 0, false, true
	}
	claims, err := jwt.ParseToken(token, s.secret)
	if err != nil {
		return 0, true, false
	}
	return claims.UserID, true, true
}

// RequireToken rejects requests without a valid bearer token.
func (s *Speech) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, present, ok := s.userIDFromToken(r)
		if !present || !ok {
			writeJSONError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and returns a bearer token for it.
func (s *Speech) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSONError(w, http.StatusBadRequest, "Email is required")
		return
	}

	reg, err := s.users.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, services.ErrConflict) {
		writeJSONError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		s.writeError(w, r, err, "Signup failed")
		return
	}

	s.respondWithToken(w, r, reg.User.ID, "Created")
}

type speechLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a bearer token.
func (s *Speech) Login(w http.ResponseWriter, r *http.Request) {
	var req speechLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.AuthenticateByEmail(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err, "Login failed")
		return
	}

	s.respondWithToken(w, r, user.ID, "Logged in")
}

func (s *Speech) respondWithToken(w http.ResponseWriter, r *http.Request, userID int64, message string) {
	token, err := jwt.NewToken(userID, s.secret, s.tokenTTL)
	if err != nil {
		s.writeError(w, r, err, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": message,
		"token":   token,
	})
}

// Convert stores the uploaded audio, forwards it to the transcription service
// and returns the text. With a valid bearer token the result is also kept in
// the user's history.
func (s *Speech) Convert(w http.ResponseWriter, r *http.Request) {
	userID, present, ok := s.userIDFromToken(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, http.ErrMissingFile):
			writeJSONError(w, http.StatusBadRequest, "No file uploaded")
		default:
			writeJSONError(w, http.StatusBadRequest, "Invalid upload")
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSONError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !transcribe.Allowed(header.Filename) {
		writeJSONError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	path, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		s.writeError(w, r, err, "Failed to store upload")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, r, err, "Failed to store upload")
		return
	}
	defer f.Close()

	filename := transcribe.SanitizeFilename(header.Filename)
	text, err := s.transcriber.Transcribe(r.Context(), filename, f)
	if err != nil {
		s.log.Error("transcription failed",
			logger.Err(err),
			slog.String("file", filename),
		)
		writeJSONError(w, http.StatusBadGateway, "Transcription failed")
		return
	}

	t := &models.Transcription{Filename: filename, Text: text}
	if present {
		t.UserID = &userID
	}
	if _, err := s.db.SaveTranscription(r.Context(), t); err != nil {
		s.log.Warn("failed to save transcription", logger.Err(err), slog.String("file", filename))
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// History lists the caller's transcriptions, newest first.
func (s *Speech) History(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(userIDContextKey).(int64)

	list, err := s.db.ListTranscriptions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Health reports whether the database is reachable.
func (s *Speech) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Speech) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	writeServiceError(s.log, w, r, err, fallback)
}
