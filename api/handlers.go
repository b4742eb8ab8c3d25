package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
	"pulseboard/suprsend"
)

const (
	triggerBodyMaxSize = 64 * 1024 // 64 KiB
	authBodyMaxSize    = 8 * 1024

	// DefaultOTPWorkflow is triggered for sign-in verification codes.
	DefaultOTPWorkflow = "otp_verification"
)

// SessionIssuer mints session tokens after a successful OTP verification.
type SessionIssuer interface {
	IssueSession(distinctID string) (string, error)
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, hub Hub, auth Authenticator, issuer SessionIssuer, deduper Deduper, otps *OTPStore, otpSlug string, logger *log.Logger) {
	if otpSlug == "" {
		otpSlug = DefaultOTPWorkflow
	}
	e.POST("/api/workflow/trigger", postTrigger(hub, auth, deduper, logger))
	e.POST("/api/otp/send", postOTPSend(hub, otps, otpSlug, logger))
	e.POST("/api/otp/verify", postOTPVerify(otps, issuer, logger))
	e.POST("/api/user/upsert", postUserUpsert(hub))
	e.GET("/api/preferences", getPreferences(hub, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func postTrigger(hub Hub, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTriggerMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		lr := io.LimitReader(c.Request().Body, triggerBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()
		var req domain.TriggerRequest
		if decodeErr := dec.Decode(&req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		if req.WorkflowSlug == "" || req.UserEmail == "" || req.DistinctID == "" {
			metrics.SetErrorStage("validate")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "missing required fields"})
			return err
		}
		metrics.SetWorkflow(req.WorkflowSlug)
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.NewString()
		}

		if deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, req.IdempotencyKey)
			if dedupeErr != nil {
				// Dedupe failing open beats dropping a real notification.
				logger.WithError(dedupeErr).Warn("trigger dedupe unavailable")
			} else if !added {
				metrics.SetDeduped(true)
				err = c.JSON(http.StatusOK, domain.TriggerResponse{Success: true})
				return err
			}
		}

		name := req.UserName
		if name == "" {
			name = "User"
		}
		payload := suprsend.TriggerPayload{
			Workflow:       req.WorkflowSlug,
			IdempotencyKey: req.IdempotencyKey,
			Recipients: []suprsend.Recipient{{
				DistinctID: req.DistinctID,
				Email:      []string{req.UserEmail},
				Name:       name,
				Channels:   []string{"email", "inbox"},
			}},
			Data: req.EventData,
		}

		hubStart := time.Now()
		messageID, hubErr := hub.TriggerWorkflow(ctx, payload)
		metrics.ObserveHub(time.Since(hubStart))
		if hubErr != nil {
			metrics.SetErrorStage("hub")
			if deduper != nil {
				if rerr := deduper.Remove(ctx, userID, req.IdempotencyKey); rerr != nil {
					logger.WithError(rerr).WithField("key", req.IdempotencyKey).Error("dedupe rollback failed")
				}
			}
			err = hubErrorResponse(c, hubErr, "failed to trigger workflow")
			return err
		}

		err = c.JSON(http.StatusOK, domain.TriggerResponse{Success: true, MessageID: messageID})
		return err
	}
}

type otpSendRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName,omitempty"`
}

type otpSendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
}

func postOTPSend(hub Hub, otps *OTPStore, slug string, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req otpSendRequest
		if err := decodeBody(c, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if !domain.IsEmailAddress(req.Email) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "valid email is required"})
		}

		code, err := GenerateOTP()
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to send OTP"})
		}
		if err := otps.Put(ctx, req.Email, code); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to send OTP"})
		}

		name := req.UserName
		if name == "" {
			name = "User"
		}
		payload := suprsend.TriggerPayload{
			Workflow:       slug,
			IdempotencyKey: uuid.NewString(),
			Recipients: []suprsend.Recipient{{
				DistinctID: req.Email,
				Email:      []string{req.Email},
				Name:       name,
				Channels:   []string{"email"},
			}},
			Data: map[string]any{
				"code":      code,
				"otp":       code,
				"user_name": name,
			},
		}
		messageID, err := hub.TriggerWorkflow(ctx, payload)
		if err != nil {
			logger.WithError(err).WithField("email", req.Email).Error("otp delivery failed")
			return hubErrorResponse(c, err, "failed to send OTP")
		}
		return c.JSON(http.StatusOK, otpSendResponse{Success: true, MessageID: messageID})
	}
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type otpVerifyResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

func postOTPVerify(otps *OTPStore, issuer SessionIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req otpVerifyRequest
		if err := decodeBody(c, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if !domain.IsEmailAddress(req.Email) || req.Code == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email and code are required"})
		}

		ok, err := otps.Verify(ctx, req.Email, req.Code)
		if err != nil {
			logger.WithError(err).Error("otp verification unavailable")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "verification unavailable"})
		}
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid or expired code"})
		}

		token, err := issuer.IssueSession(req.Email)
		if err != nil {
			logger.WithError(err).Error("session issuing failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
		}
		return c.JSON(http.StatusOK, otpVerifyResponse{Success: true, Token: token})
	}
}

type upsertRequest struct {
	DistinctID string               `json:"distinctId"`
	UserData   suprsend.UserProfile `json:"userData"`
}

type upsertResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func postUserUpsert(hub Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req upsertRequest
		if err := decodeBody(c, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.DistinctID == "" || len(req.UserData.Email) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "distinctId and email are required"})
		}

		if err := hub.UpsertUser(ctx, req.DistinctID, req.UserData); err != nil {
			c.Logger().Error(err)
			return hubErrorResponse(c, err, "failed to create user")
		}
		return c.JSON(http.StatusOK, upsertResponse{Success: true, Message: "user created"})
	}
}

func getPreferences(hub Hub, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		doc, err := hub.FetchPreferences(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return hubErrorResponse(c, err, "failed to fetch preferences")
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func decodeBody(c echo.Context, limit int64, out any) error {
	lr := io.LimitReader(c.Request().Body, limit)
	dec := sonic.ConfigStd.NewDecoder(lr)
	return dec.Decode(out)
}

// hubErrorResponse maps a hub failure onto the endpoint's error envelope,
// passing the hub's own status through when it answered at all.
func hubErrorResponse(c echo.Context, err error, fallback string) error {
	var apiErr *suprsend.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.StatusCode, errorResponse{Error: apiErr.Message})
	}
	return c.JSON(http.StatusBadGateway, errorResponse{Error: fallback})
}
