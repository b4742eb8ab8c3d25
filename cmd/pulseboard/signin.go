package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

const clientBodyMaxSize = 64 * 1024

var httpc = &http.Client{Timeout: 15 * time.Second}

// signIn walks the email + one-time-code login against the backend and
// returns a usable session. Email and name come from the environment when
// set, otherwise from stdin.
func signIn(apiURL string, logger *log.Logger) (domain.Session, error) {
	in := bufio.NewReader(os.Stdin)

	email := strings.TrimSpace(os.Getenv("PULSEBOARD_USER_EMAIL"))
	if email == "" {
		fmt.Print("Email: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return domain.Session{}, err
		}
		email = strings.TrimSpace(line)
	}
	if !domain.IsEmailAddress(email) {
		return domain.Session{}, errors.New("a valid email address is required")
	}

	name := strings.TrimSpace(os.Getenv("PULSEBOARD_USER_NAME"))
	if name == "" {
		name = domain.NameFromEmail(email)
	}

	if err := postJSON(apiURL+"/api/otp/send", "", map[string]string{
		"email":    email,
		"userName": name,
	}, nil); err != nil {
		return domain.Session{}, fmt.Errorf("send code: %w", err)
	}
	fmt.Printf("A verification code was sent to %s.\n", email)

	fmt.Print("Code: ")
	line, err := in.ReadString('\n')
	if err != nil {
		return domain.Session{}, err
	}
	code := strings.TrimSpace(line)

	var verified struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := postJSON(apiURL+"/api/otp/verify", "", map[string]string{
		"email": email,
		"code":  code,
	}, &verified); err != nil {
		return domain.Session{}, fmt.Errorf("verify code: %w", err)
	}

	sess := domain.Session{
		DistinctID: email,
		Name:       name,
		Email:      email,
		Token:      verified.Token,
	}

	// Registering the subscriber profile is best effort; the board works
	// without it, notifications just lose the display name.
	if err := postJSON(apiURL+"/api/user/upsert", sess.Token, map[string]any{
		"distinctId": sess.DistinctID,
		"userData": map[string]any{
			"name":   sess.Name,
			"$email": []string{sess.Email},
		},
	}, nil); err != nil {
		logger.WithError(err).Warn("subscriber profile not registered")
	}
	return sess, nil
}

// preferenceClient fetches the user's notification preferences from the
// backend so the gate can evaluate them.
type preferenceClient struct {
	apiURL string
	token  string
	logger *log.Logger
}

func newPreferenceClient(apiURL, token string, logger *log.Logger) *preferenceClient {
	return &preferenceClient{apiURL: strings.TrimRight(apiURL, "/"), token: token, logger: logger}
}

func (p *preferenceClient) FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/api/preferences", nil)
	if err != nil {
		return domain.PreferenceDocument{}, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return domain.PreferenceDocument{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, clientBodyMaxSize))
	if resp.StatusCode != http.StatusOK {
		return domain.PreferenceDocument{}, fmt.Errorf("preferences: %s", responseError(body, resp.StatusCode))
	}
	var doc domain.PreferenceDocument
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return domain.PreferenceDocument{}, err
	}
	return doc, nil
}

func postJSON(url, token string, payload any, out any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, clientBodyMaxSize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(responseError(respBody, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return sonic.Unmarshal(respBody, out)
}

func responseError(body []byte, status int) string {
	var er struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return fmt.Sprintf("unexpected status %d", status)
}
