package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// SessionStore holds the credential the gateway authenticates with.
// Invalidate is called when the backend rejects the credential, so the
// consumer can drop the session and force a new login.
type SessionStore interface {
	Credential() domain.Credential
	Invalidate()
}

// Gateway is the HTTP client side of the queue API. It implements
// ports.QueueService against the backend, decodes the response envelope and
// normalizes error bodies back into domain errors, so callers handle a
// remote queue exactly like a local one.
type Gateway struct {
	baseURL string
	client  *http.Client
	session SessionStore
	logger  *slog.Logger
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// BaseURL is the API root, e.g. "https://host/api/v1".
	BaseURL string

	HTTPClient *http.Client
	Session    SessionStore
	Logger     *slog.Logger
}

// NewGateway creates a gateway against the given API root.
func NewGateway(cfg GatewayConfig) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		session: cfg.Session,
		logger:  logger.With("component", "gateway"),
	}
}

// --- Wire DTOs, mirrored from the backend handlers ---

type createTicketRequest struct {
	CustomerName     string `json:"customerName"`
	CustomerDocument string `json:"customerDocument,omitempty"`
	CustomerPhone    string `json:"customerPhone,omitempty"`
	TenantID         string `json:"tenantId"`
	ModuleID         string `json:"moduleId,omitempty"`
}

type callNextRequest struct {
	ModuleID string `json:"moduleId"`
}

type startTicketRequest struct {
	ModuleID string `json:"moduleId"`
}

type completeTicketRequest struct {
	Notes string `json:"notes"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is what a successful login returns: the session token and the
// authenticated user's identity.
type LoginResult struct {
	Token string `json:"token"`
	User  struct {
		ID       uuid.UUID `json:"id"`
		Email    string    `json:"email"`
		FullName string    `json:"fullName"`
		Role     string    `json:"role"`
		TenantID uuid.UUID `json:"tenantId"`
	} `json:"user"`
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// codeToErr maps backend error codes back onto the domain sentinels, so
// errors.Is works the same on both sides of the wire.
var codeToErr = map[string]error{
	"ATTENDANT_BUSY":            apperrors.ErrAttendantBusy,
	"RECALL_LIMIT":              apperrors.ErrRecallLimit,
	"QUEUE_EMPTY":               apperrors.ErrQueueEmpty,
	"TICKET_NOT_FOUND":          apperrors.ErrTicketNotFound,
	"USER_NOT_FOUND":            apperrors.ErrUserNotFound,
	"USER_EXISTS":               apperrors.ErrUserExists,
	"INVALID_CREDENTIALS":       apperrors.ErrInvalidCredentials,
	"UNAUTHORIZED":              apperrors.ErrUnauthorized,
	"FORBIDDEN":                 apperrors.ErrForbidden,
	"PAIRING_CODE_INVALID":      apperrors.ErrPairingCodeInvalid,
	"PAIRING_CODE_EXPIRED":      apperrors.ErrPairingCodeExpired,
	"INVALID_STATUS_TRANSITION": apperrors.ErrInvalidStatusTransition,
	"RATE_LIMITED":              apperrors.ErrRateLimited,
}

// --- QueueService implementation ---

// Login authenticates the user and returns the session token. A 401 here
// does not invalidate the stored session: failing to log in is not the same
// as an expired session.
func (g *Gateway) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := g.do(ctx, http.MethodPost, "/auth/login", loginRequest{
		Email:    email,
		Password: password,
	}, &result, withoutLogout())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTicket registers a new ticket in the queue.
func (g *Gateway) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	req := createTicketRequest{
		CustomerName:     params.Customer.Name,
		CustomerDocument: params.Customer.Document,
		CustomerPhone:    params.Customer.Phone,
		TenantID:         params.TenantID.String(),
	}
	if params.ModuleID != nil {
		req.ModuleID = params.ModuleID.String()
	}

	var ticket domain.Ticket
	if err := g.do(ctx, http.MethodPost, "/tickets", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListPending fetches the pending queue of a tenant, oldest first.
func (g *Gateway) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	return g.getList(ctx, "/tickets/pending/"+tenantID.String())
}

// NextPending peeks at the oldest pending ticket without claiming it.
func (g *Gateway) NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	path := "/tickets/next/" + tenantID.String()
	if moduleID != nil {
		path += "?moduleId=" + moduleID.String()
	}

	var ticket domain.Ticket
	if err := g.do(ctx, http.MethodGet, path, nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Current fetches the ticket an attendant is serving. A nil ticket with a
// nil error means the attendant is free.
func (g *Gateway) Current(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error) {
	path := fmt.Sprintf("/tickets/current/%s?attendantId=%s", tenantID, attendantID)

	var ticket *domain.Ticket
	if err := g.do(ctx, http.MethodGet, path, nil, &ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// LastCalled fetches the most recently called tickets, newest first.
func (g *Gateway) LastCalled(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	return g.getList(ctx, "/tickets/called/"+tenantID.String())
}

// CallNext claims the oldest pending ticket for the authenticated attendant.
// The attendant identity comes from the session credential; the backend
// ignores any other claim.
func (g *Gateway) CallNext(ctx context.Context, params ports.CallNextParams) (*domain.Ticket, error) {
	var body any
	if params.ModuleID != nil {
		body = callNextRequest{ModuleID: params.ModuleID.String()}
	}

	var ticket domain.Ticket
	if err := g.do(ctx, http.MethodPost, "/tickets/next/"+params.TenantID.String(), body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Start begins service on a specific ticket.
func (g *Gateway) Start(ctx context.Context, params ports.StartTicketParams) (*domain.Ticket, error) {
	var body any
	if params.ModuleID != nil {
		body = startTicketRequest{ModuleID: params.ModuleID.String()}
	}
	return g.postAction(ctx, params.TicketID, "start", body)
}

// Complete finishes service on a ticket.
func (g *Gateway) Complete(ctx context.Context, params ports.CompleteTicketParams) (*domain.Ticket, error) {
	var body any
	if params.Notes != "" {
		body = completeTicketRequest{Notes: params.Notes}
	}
	return g.postAction(ctx, params.TicketID, "complete", body)
}

// Abandon marks a ticket as abandoned.
func (g *Gateway) Abandon(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return g.postAction(ctx, ticketID, "abandon", nil)
}

// Recall re-announces the ticket currently in service.
func (g *Gateway) Recall(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return g.postAction(ctx, ticketID, "recall", nil)
}

// --- Internals ---

func (g *Gateway) postAction(ctx context.Context, ticketID uuid.UUID, action string, body any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	path := fmt.Sprintf("/tickets/%s/%s", ticketID, action)
	if err := g.do(ctx, http.MethodPost, path, body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (g *Gateway) getList(ctx context.Context, path string) ([]*domain.Ticket, error) {
	var envelope struct {
		Data  []*domain.Ticket `json:"data"`
		Count int              `json:"count"`
	}
	if err := g.doRaw(ctx, http.MethodGet, path, nil, &envelope, false); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

type doOption func(*doOptions)

type doOptions struct {
	skipLogout bool
}

// withoutLogout marks a call whose 401 must not invalidate the session.
func withoutLogout() doOption {
	return func(o *doOptions) { o.skipLogout = true }
}

// do performs a request and decodes the {"data": ...} envelope into out.
func (g *Gateway) do(ctx context.Context, method, path string, body, out any, opts ...doOption) error {
	var options doOptions
	for _, opt := range opts {
		opt(&options)
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	return g.doRaw(ctx, method, path, body, &envelope, options.skipLogout)
}

func (g *Gateway) doRaw(ctx context.Context, method, path string, body, out any, skipLogout bool) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.session != nil {
		if cred := g.session.Credential(); !cred.IsZero() {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("queue api %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return g.normalizeError(method, path, resp, skipLogout)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("decode response of %s %s: %w", method, path, err))
	}
	return nil
}

// normalizeError turns an error response into a domain error. Any 401 on an
// authenticated call invalidates the local session: the credential is dead
// and the consumer has to log in again.
func (g *Gateway) normalizeError(method, path string, resp *http.Response, skipLogout bool) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode == http.StatusUnauthorized && !skipLogout && g.session != nil {
		g.logger.Warn("session rejected by backend, invalidating",
			"method", method,
			"path", path,
		)
		g.session.Invalidate()
	}

	if sentinel, ok := codeToErr[body.Code]; ok {
		return sentinel
	}

	message := body.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &apperrors.AppError{
		Err:        apperrors.ErrInternal,
		Message:    message,
		Code:       body.Code,
		StatusCode: resp.StatusCode,
	}
}
