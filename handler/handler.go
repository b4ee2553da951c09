package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"text-adapter/internal/domain"
	"text-adapter/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Adapter interface {
	Adapt(ctx context.Context, req domain.AdaptationRequest) domain.AdaptationResult
}

type Accounts interface {
	Register(ctx context.Context, in usecase.RegisterInput) (domain.User, error)
	Verify(ctx context.Context, in usecase.VerifyInput) (usecase.VerifyOutput, error)
	Login(ctx context.Context, in usecase.LoginInput) (domain.User, error)
	ChangePassword(ctx context.Context, in usecase.ChangePasswordInput) error
}

// Handler serves API Gateway proxy events.
type Handler struct {
	adapter  Adapter
	accounts Accounts
}

type adaptRequest struct {
	Text           string `json:"text"`
	TargetLevel    string `json:"target_level"`
	NativeLanguage string `json:"native_language"`
}

type registerRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Email          string `json:"email"`
	NativeLanguage string `json:"native_language"`
	RussianLevel   string `json:"russian_level"`
}

type verifyRequest struct {
	UserID string `json:"user_id"`
	// Code may arrive as a JSON string or number.
	Code json.Number `json:"verification_code"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	UserID          string `json:"user_id"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	NativeLanguage   string  `json:"native_language"`
	Email            string  `json:"email"`
	RussianLevel     string  `json:"russian_level"`
	Status           string  `json:"status"`
	RegistrationDate string  `json:"registration_date"`
	VerifiedAt       *string `json:"verified_at,omitempty"`
}

type accountResponse struct {
	Success bool          `json:"success"`
	Error   *string       `json:"error"`
	Data    *userResponse `json:"data,omitempty"`
	Message string        `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type healthResponse struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

func NewHandler(adapter Adapter, accounts Accounts) (*Handler, error) {
	if adapter == nil {
		return nil, errors.New("handler: adapter must not be nil")
	}
	if accounts == nil {
		return nil, errors.New("handler: accounts must not be nil")
	}
	return &Handler{adapter: adapter, accounts: accounts}, nil
}

// Handle routes one request. It only returns an error for conditions Lambda
// should retry; every client or upstream failure is an HTTP response.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID)

	path := strings.TrimRight(event.Path, "/")
	var resp events.APIGatewayProxyResponse
	switch path {
	case "/api":
		resp = jsonResponse(http.StatusOK, healthResponse{Status: http.StatusOK, Data: "You are in api"})
	case "/api/adapt-text":
		resp = h.post(event, h.adaptText(ctx, log))
	case "/api/auth/registration":
		resp = h.post(event, h.register(ctx))
	case "/api/auth/verification":
		resp = h.post(event, h.verify(ctx))
	case "/api/auth/login":
		resp = h.post(event, h.login(ctx))
	case "/api/user/password":
		resp = h.post(event, h.changePassword(ctx))
	default:
		resp = errorJSON(http.StatusNotFound, "NOT_FOUND", "Not found")
	}

	resp.Headers[correlationHeader] = correlationID
	log.Info("request handled",
		"method", event.HTTPMethod,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) post(event events.APIGatewayProxyRequest, fn func(body []byte) events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if event.HTTPMethod != http.MethodPost {
		return errorJSON(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Use POST method")
	}
	body, err := requestBody(event)
	if err != nil {
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid request body encoding")
	}
	return fn(body)
}

// requestBody returns the raw body, decoding it when API Gateway delivered it
// base64-encoded.
func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func (h *Handler) adaptText(ctx context.Context, log *slog.Logger) func([]byte) events.APIGatewayProxyResponse {
	return func(body []byte) events.APIGatewayProxyResponse {
		var in adaptRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid JSON body")
		}
		res := h.adapter.Adapt(ctx, domain.AdaptationRequest{
			OriginalText:   in.Text,
			TargetLevel:    domain.Level(in.TargetLevel),
			NativeLanguage: in.NativeLanguage,
		})
		if !res.Success {
			log.Warn("adaptation failed", "code", res.Code, "has_data", res.Data != nil)
		}
		return jsonResponse(adaptationStatus(res), res)
	}
}

func (h *Handler) register(ctx context.Context) func([]byte) events.APIGatewayProxyResponse {
	return func(body []byte) events.APIGatewayProxyResponse {
		var in registerRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid JSON body")
		}
		user, err := h.accounts.Register(ctx, usecase.RegisterInput{
			Username:       in.Username,
			Password:       in.Password,
			Email:          in.Email,
			NativeLanguage: in.NativeLanguage,
			RussianLevel:   in.RussianLevel,
		})
		if err != nil {
			return usecaseErrorResponse(err)
		}
		return jsonResponse(http.StatusOK, accountResponse{Success: true, Data: toUserResponse(user)})
	}
}

func (h *Handler) verify(ctx context.Context) func([]byte) events.APIGatewayProxyResponse {
	return func(body []byte) events.APIGatewayProxyResponse {
		var in verifyRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid JSON body")
		}
		out, err := h.accounts.Verify(ctx, usecase.VerifyInput{UserID: in.UserID, Code: in.Code.String()})
		if err != nil {
			return usecaseErrorResponse(err)
		}
		if out.AlreadyVerified {
			return jsonResponse(http.StatusOK, accountResponse{Success: true, Message: "Данная почта уже была подтверждена"})
		}
		return jsonResponse(http.StatusOK, accountResponse{
			Success: true,
			Data:    toUserResponse(out.User),
			Message: "Верификация прошла успешно.",
		})
	}
}

func (h *Handler) login(ctx context.Context) func([]byte) events.APIGatewayProxyResponse {
	return func(body []byte) events.APIGatewayProxyResponse {
		var in loginRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid JSON body")
		}
		user, err := h.accounts.Login(ctx, usecase.LoginInput{Login: in.Login, Password: in.Password})
		if err != nil {
			return usecaseErrorResponse(err)
		}
		return jsonResponse(http.StatusOK, accountResponse{
			Success: true,
			Data:    toUserResponse(user),
			Message: "Login successful",
		})
	}
}

func (h *Handler) changePassword(ctx context.Context) func([]byte) events.APIGatewayProxyResponse {
	return func(body []byte) events.APIGatewayProxyResponse {
		var in changePasswordRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "Invalid JSON body")
		}
		if err := h.accounts.ChangePassword(ctx, usecase.ChangePasswordInput{
			UserID:          in.UserID,
			CurrentPassword: in.CurrentPassword,
			NewPassword:     in.NewPassword,
		}); err != nil {
			return usecaseErrorResponse(err)
		}
		return jsonResponse(http.StatusOK, accountResponse{Success: true, Message: "Password updated"})
	}
}

// adaptationStatus maps an envelope to its HTTP status. The body is always
// the envelope itself.
func adaptationStatus(res domain.AdaptationResult) int {
	if res.Success {
		return http.StatusOK
	}
	return statusForCode(usecase.ErrorCode(res.Code))
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	case usecase.ErrorForbidden:
		return http.StatusForbidden
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorGone:
		return http.StatusGone
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream, usecase.ErrorAnalysisUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func usecaseErrorResponse(err error) events.APIGatewayProxyResponse {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		slog.Error("unexpected account error", "err", err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "Internal error")
	}
	if usecaseErr.Err != nil {
		slog.Warn("account request failed", "code", usecaseErr.Code, "err", usecaseErr.Err)
	}
	return errorJSON(statusForCode(usecaseErr.Code), string(usecaseErr.Code), usecaseErr.Reason)
}

func toUserResponse(u domain.User) *userResponse {
	out := &userResponse{
		ID:               u.ID,
		Username:         u.Username,
		NativeLanguage:   u.NativeLanguage,
		Email:            u.Email,
		RussianLevel:     u.RussianLevel,
		Status:           u.Status,
		RegistrationDate: u.RegisteredAt.UTC().Format(time.RFC3339),
	}
	if u.VerifiedAt != nil {
		v := u.VerifiedAt.UTC().Format(time.RFC3339)
		out.VerifiedAt = &v
	}
	return out
}

func errorJSON(status int, code, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Success: false, Error: msg, Code: code})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal response", "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"Internal error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
