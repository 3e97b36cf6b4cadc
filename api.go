package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

var ErrUnauthorized = errors.New("api: user unauthorized")

const MaxImageSize = 50 << 20 // 50MB

type APIServer struct {
	users      *UserService
	images     *ImageService
	listenAddr string
}

func NewAPIServer(users *UserService, images *ImageService, listenAddr string) *APIServer {
	return &APIServer{
		users:      users,
		images:     images,
		listenAddr: listenAddr,
	}
}

type APIFunc func(w http.ResponseWriter, r *http.Request) error

func makeHandler(f APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		err := f(w, r)

		var statusError *StatusError
		if errors.As(err, &statusError) {
			slog.Error("Writing API Status Error to response",
				"request_id", requestID,
				"status_error", statusError,
			)

			if statusError.Err != nil {
				w.WriteHeader(statusError.Status)
				writeJSON(w, statusError)
			} else {
				http.Error(w, http.StatusText(statusError.Status), statusError.Status)
			}

			return
		}

		if err != nil {
			slog.Error("Writing an error to response", "request_id", requestID, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

			return
		}
	}
}

type StatusError struct {
	Err    error `json:"error,omitempty"`
	Status int   `json:"status,omitempty"`
}

func (a *StatusError) Error() string {
	if a.Err != nil {
		return a.Err.Error()
	}

	return ""
}

// MarshalJSON flattens Err to its message; error values have no exported
// fields and would otherwise serialize as "{}".
func (a *StatusError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string `json:"error,omitempty"`
		Status int    `json:"status,omitempty"`
	}{
		Error:  a.Error(),
		Status: a.Status,
	})
}

func (s *APIServer) Run() error {
	srv := s.server()

	slog.Info("Starting the server", "listen_addr", s.listenAddr)

	return srv.ListenAndServe()
}

func (s *APIServer) server() *http.Server {
	return &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       10 * time.Second,
	}
}

func (s *APIServer) routes() *http.ServeMux {
	r := http.NewServeMux()

	r.HandleFunc("/api/users/register", makeHandler(s.HandleRegister))
	r.HandleFunc("/api/users/login", makeHandler(s.HandleLogin))
	r.HandleFunc("/api/images/upload", makeHandler(
		s.authMiddleware(s.HandleUploadImage),
	))
	r.HandleFunc("/api/images/", makeHandler(
		s.authMiddleware(s.HandleImage),
	))

	return r
}

type HandleRegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (s *APIServer) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	var req HandleRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	if err := validateRegistration(req); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	user, err := s.users.Register(r.Context(), req.Username, req.Password, req.FirstName, req.LastName, req.Email)
	if errors.Is(err, ErrUsernameTaken) {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	slog.Debug("Registered a user", "username", user.Username)

	return writeJSON(w, user)
}

func validateRegistration(req HandleRegisterRequest) error {
	switch {
	case len(req.Username) < 3 || len(req.Username) > 20:
		return errors.New("api: username must be 3-20 characters")
	case len(req.Password) < 6 || len(req.Password) > 100:
		return errors.New("api: password must be 6-100 characters")
	case req.FirstName == "":
		return errors.New("api: first name is required")
	case req.LastName == "":
		return errors.New("api: last name is required")
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return errors.New("api: email is invalid")
	default:
		return nil
	}
}

type HandleLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type HandleLoginResponse struct {
	Token string `json:"token"`
}

func (s *APIServer) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	var req HandleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	user, err := s.users.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrInvalidCredentials) {
		return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
	}

	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	token, err := NewJWTAccessToken(user)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	return writeJSON(w, HandleLoginResponse{Token: token.Access})
}

type HandleUploadImageResponse struct {
	ID         int64  `json:"id"`
	DeleteHash string `json:"delete_hash"`
	Link       string `json:"link"`
}

func (s *APIServer) HandleUploadImage(claims *jwt.RegisteredClaims, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	if err := r.ParseMultipartForm(MaxImageSize); err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	formFile, handler, err := r.FormFile("image")
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}
	defer formFile.Close()

	slog.Debug("Received an image",
		"filename", handler.Filename,
		"size", handler.Size,
		"header", handler.Header,
	)

	image, err := io.ReadAll(formFile)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	img, err := s.images.Upload(r.Context(), claims.Subject, image)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	slog.Debug("Uploaded an image", "id", img.ID, "link", img.Link)

	return writeJSON(w, HandleUploadImageResponse{
		ID:         img.ID,
		DeleteHash: img.DeleteHash,
		Link:       img.Link,
	})
}

type HandleViewImageResponse struct {
	Link string `json:"link"`
}

type HandleDeleteImageResponse struct {
	Message string `json:"message"`
}

// HandleImage serves /api/images/{id} and /api/images/{deleteHash}, dispatched
// on the method.
func (s *APIServer) HandleImage(claims *jwt.RegisteredClaims, w http.ResponseWriter, r *http.Request) error {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/images/")
	if suffix == "" || strings.Contains(suffix, "/") {
		return &StatusError{Err: nil, Status: http.StatusNotFound}
	}

	switch r.Method {
	case http.MethodGet:
		return s.handleViewImage(claims, w, r, suffix)
	case http.MethodDelete:
		return s.handleDeleteImage(claims, w, r, suffix)
	default:
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}
}

func (s *APIServer) handleViewImage(claims *jwt.RegisteredClaims, w http.ResponseWriter, r *http.Request, rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	link, err := s.images.View(r.Context(), claims.Subject, id)
	if errors.Is(err, ErrAccessDenied) {
		return &StatusError{Err: err, Status: http.StatusForbidden}
	}

	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	return writeJSON(w, HandleViewImageResponse{Link: link})
}

func (s *APIServer) handleDeleteImage(claims *jwt.RegisteredClaims, w http.ResponseWriter, r *http.Request, deleteHash string) error {
	err := s.images.Delete(r.Context(), claims.Subject, deleteHash)
	if errors.Is(err, ErrAccessDenied) {
		return &StatusError{Err: err, Status: http.StatusForbidden}
	}

	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	return writeJSON(w, HandleDeleteImageResponse{Message: "Image deleted successfully"})
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	return json.NewEncoder(w).Encode(v)
}

type APIAuthFunc func(claims *jwt.RegisteredClaims, w http.ResponseWriter, r *http.Request) error

func (s *APIServer) authMiddleware(f APIAuthFunc) APIFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		auth := r.Header.Get("Authorization")

		header := strings.Split(auth, " ")
		if len(header) != 2 {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		claims, ok := VerifyJWTToken(header[1])
		if !ok {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		return f(claims, w, r)
	}
}
