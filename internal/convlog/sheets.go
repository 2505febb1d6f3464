package convlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SheetsSink appends rows to a Google Sheets worksheet, authenticating as a
// service account.
type SheetsSink struct {
	spreadsheetID string
	worksheet     string
	baseURL       string
	tokenURL      string
	creds         serviceAccount
	client        *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// SheetsConfig locates the target worksheet and the credential bundle.
type SheetsConfig struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
	// BaseURL and TokenURL default to the Google endpoints; tests override.
	BaseURL  string
	TokenURL string
}

func NewSheetsSink(cfg SheetsConfig) (*SheetsSink, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	var creds serviceAccount
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("sheets credentials missing client_email or private_key")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://sheets.googleapis.com/v4"
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = creds.TokenURI
	}
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}
	worksheet := cfg.Worksheet
	if worksheet == "" {
		worksheet = "Sheet1"
	}

	return &SheetsSink{
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     worksheet,
		baseURL:       base,
		tokenURL:      tokenURL,
		creds:         creds,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *SheetsSink) Append(ctx context.Context, rec Record) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}

	row := []any{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.UserID,
		rec.Summary,
	}
	payload, err := json.Marshal(map[string]any{"values": [][]any{row}})
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	appendURL := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=RAW",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(s.worksheet))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, appendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("sheets append status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *SheetsSink) Close() error { return nil }

// token returns a cached service-account access token, minting a new one
// via a signed JWT assertion when the cached token is close to expiry.
func (s *SheetsSink) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && time.Until(s.tokenExpiry) > time.Minute {
		return s.accessToken, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.creds.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse service account key: %w", err)
	}

	now := time.Now()
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   s.creds.ClientEmail,
		"scope": "https://www.googleapis.com/auth/spreadsheets",
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange token: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	s.accessToken = parsed.AccessToken
	s.tokenExpiry = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return s.accessToken, nil
}
