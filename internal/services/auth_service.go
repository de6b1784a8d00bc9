package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

// AuthService issues identities for users and admins. It is the thin
// credential collaborator in front of the ledger: signup also opens the
// principal's account.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	seedMin   decimal.Decimal
	seedMax   decimal.Decimal
	logger    *zap.SugaredLogger
}

// SignupRequest represents the signup request payload
// @Description Signup request structure
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email" example:"student@campus.edu"` // Login email
	Password  string `json:"password" validate:"required,min=6" example:"password123"`     // Password
	FirstName string `json:"firstName" validate:"required,min=2" example:"Asha"`           // First name
	LastName  string `json:"lastName" validate:"required,min=2" example:"Rao"`             // Last name
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"student@campus.edu"` // Login email
	Password string `json:"password" validate:"required,min=6" example:"password123"`     // Password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token   string           `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User    models.Principal `json:"user"`                                                    // Principal information
	Balance *decimal.Decimal `json:"balance,omitempty" swaggertype:"string" example:"1520.75"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, seedMin, seedMax decimal.Decimal, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		seedMin:   seedMin,
		seedMax:   seedMax,
		logger:    logger.Sugar(),
	}
}

// UserSignup registers a student and opens their account
// @Summary Register a user
// @Description Register a user; the new account starts with a seeded balance
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /user/signup [post]
func (s *AuthService) UserSignup(w http.ResponseWriter, r *http.Request) {
	s.signup(w, r, models.RoleUser)
}

// AdminSignup registers an admin and opens their collection account
// @Summary Register an admin
// @Description Register an admin with a zero-balance fee collection account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/signup [post]
func (s *AuthService) AdminSignup(w http.ResponseWriter, r *http.Request) {
	s.signup(w, r, models.RoleAdmin)
}

// UserSignin authenticates a user
// @Summary Sign in a user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /user/signin [post]
func (s *AuthService) UserSignin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, models.RoleUser)
}

// AdminLogin authenticates an admin
// @Summary Sign in an admin
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/login [post]
func (s *AuthService) AdminLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, models.RoleAdmin)
}

func (s *AuthService) signup(w http.ResponseWriter, r *http.Request, role string) {
	s.logger.Infof("[AUTH] %s signup attempt from IP: %s", role, r.RemoteAddr)

	var req SignupRequest
	if !s.decode(w, r, &req) {
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		s.logger.Errorf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	principal := models.Principal{
		ID:        uuid.NewString(),
		Username:  strings.ToLower(req.Email),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	balance := decimal.Zero
	if role == models.RoleUser {
		balance = s.seedBalance()
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		s.logger.Errorf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(),
		fmt.Sprintf("INSERT INTO %s (id, email, password, first_name, last_name, created_at) VALUES ($1, $2, $3, $4, $5, $6)", principalTable(role)),
		principal.ID, principal.Username, hashedPassword, principal.FirstName, principal.LastName, principal.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			s.logger.Infof("[AUTH] Signup rejected, email already registered: %s", req.Email)
			SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
			return
		}
		s.logger.Errorf("[AUTH] %s creation failed for %s: %v", role, req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	_, err = tx.ExecContext(r.Context(),
		"INSERT INTO accounts (owner_id, balance, is_admin_collection, version, updated_at) VALUES ($1, $2, $3, 1, $4)",
		principal.ID, balance, role == models.RoleAdmin, principal.CreatedAt)
	if err != nil {
		s.logger.Errorf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		s.logger.Errorf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(principal.ID, role)
	if err != nil {
		s.logger.Errorf("[AUTH] JWT generation failed for %s: %v", principal.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Infof("[AUTH] %s created - ID: %s, Email: %s", role, principal.ID, principal.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: principal, Balance: &balance})
}

func (s *AuthService) login(w http.ResponseWriter, r *http.Request, role string) {
	s.logger.Infof("[AUTH] %s login attempt from IP: %s", role, r.RemoteAddr)

	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	principal := models.Principal{Role: role}
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(),
		fmt.Sprintf("SELECT id, email, first_name, last_name, password, created_at FROM %s WHERE email = $1", principalTable(role)),
		strings.ToLower(req.Email)).Scan(&principal.ID, &principal.Username, &principal.FirstName, &principal.LastName, &hashedPassword, &principal.CreatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Errorf("[AUTH] Login lookup failed for %s: %v", req.Email, err)
		}
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		s.logger.Infof("[AUTH] Invalid password for %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(principal.ID, role)
	if err != nil {
		s.logger.Errorf("[AUTH] JWT generation failed for %s: %v", principal.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	s.logger.Infof("[AUTH] Login successful for %s %s", role, principal.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: principal})
}

// Logout handles logout
// @Summary Logout
// @Description Blacklist the bearer token until it expires
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token != "" && s.redis != nil {
		key := fmt.Sprintf("blacklist:%s", token)
		// Blacklist token until its expiration
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(r.Context(), key, "1", expiry).Err(); err != nil {
			s.logger.Warnf("[AUTH] Failed to blacklist token: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Profile returns the authenticated principal
// @Summary Get profile
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Principal
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /user/profile [get]
func (s *AuthService) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	role := middleware.RoleFromContext(r.Context())
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	principal := models.Principal{Role: role}
	err := s.db.QueryRowContext(r.Context(),
		fmt.Sprintf("SELECT id, email, first_name, last_name, created_at FROM %s WHERE id = $1", principalTable(role)),
		userID).Scan(&principal.ID, &principal.Username, &principal.FirstName, &principal.LastName, &principal.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		s.logger.Errorf("[AUTH] Failed to fetch profile for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(principal)
}

func (s *AuthService) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// seedBalance picks an opening balance in [seedMin, seedMax).
func (s *AuthService) seedBalance() decimal.Decimal {
	span := s.seedMax.Sub(s.seedMin)
	if !span.IsPositive() {
		return s.seedMin.RoundDown(2)
	}
	return s.seedMin.Add(span.Mul(decimal.NewFromFloat(rand.Float64()))).RoundDown(2)
}

func principalTable(role string) string {
	if role == models.RoleAdmin {
		return "admins"
	}
	return "users"
}

func generateJWT(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
