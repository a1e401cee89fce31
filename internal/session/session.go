// Package session creates the per-question upstream session. Every question
// gets a fresh session id so no context leaks between calls.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/imalabs/ima-mcp-go/internal/auth"
	"github.com/imalabs/ima-mcp-go/internal/config"
	imaerrors "github.com/imalabs/ima-mcp-go/internal/errors"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

// Initializer creates upstream sessions bound to a knowledge base. Session
// ids are returned by value and never stored here, so one Initializer serves
// concurrent questions.
type Initializer struct {
	cfg    *config.Config
	tokens *auth.Manager
	client *http.Client
	log    *slog.Logger
}

// NewInitializer wires the initializer to the shared HTTP client and token
// manager.
func NewInitializer(cfg *config.Config, tokens *auth.Manager, client *http.Client, log *slog.Logger) *Initializer {
	return &Initializer{
		cfg:    cfg,
		tokens: tokens,
		client: client,
		log:    log.With("component", "session"),
	}
}

// Init creates a session against the configured knowledge base.
func (i *Initializer) Init(ctx context.Context) (string, error) {
	return i.InitKB(ctx, "")
}

// InitKB creates a session against the given knowledge base, falling back to
// the configured one when kbID is empty. This is the one place where a failed
// token refresh becomes an error: a session cannot be created without auth.
func (i *Initializer) InitKB(ctx context.Context, kbID string) (string, error) {
	if kbID == "" {
		kbID = i.cfg.KnowledgeBaseID
	}
	if kbID == "" {
		kbID = config.DefaultKnowledgeBaseID
	}

	i.log.Info("Initializing session", "knowledge_base_id", kbID)

	if !i.tokens.EnsureValid(ctx) {
		return "", fmt.Errorf("init session: %w", imaerrors.ErrAuthFailed)
	}

	payload := initRequest{
		EnvInfo: envInfo{
			RobotType:    transport.RobotType,
			InteractType: transport.InteractType,
		},
		ByKeyword:                  kbID,
		RelatedURL:                 kbID,
		SceneType:                  transport.SceneType,
		MsgsLimit:                  0,
		ForbidAutoAddToHistoryList: true,
		KnowledgeBaseInfo: knowledgeBaseInfo{
			KnowledgeBaseID: kbID,
			FolderIDs:       []string{},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, transport.RequestTimeout(i.cfg.Timeout))
	defer cancel()

	headers := transport.BuildHeaders(i.cfg, i.tokens.Token(), transport.AcceptJSON)

	req, err := transport.NewJSONRequest(ctx, i.cfg.BaseURL+transport.InitSessionEndpoint, payload, headers)
	if err != nil {
		return "", fmt.Errorf("building init request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("init session request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading init response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &imaerrors.APIStatusError{
			Endpoint:   transport.InitSessionEndpoint,
			StatusCode: resp.StatusCode,
			Body:       transport.Excerpt(string(body), 500),
		}
	}

	var parsed initResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &imaerrors.SessionInitError{Msg: "unparseable response", Err: err}
	}

	if parsed.Code != 0 {
		return "", &imaerrors.SessionInitError{Code: parsed.Code, Msg: parsed.Msg}
	}

	if parsed.SessionID == "" {
		return "", &imaerrors.SessionInitError{Code: parsed.Code, Msg: parsed.Msg, Err: imaerrors.ErrNoSessionID}
	}

	i.log.Info("Session initialized", "session_id", transport.Excerpt(parsed.SessionID, 16))

	return parsed.SessionID, nil
}

// Wire shapes of the init_session endpoint: camelCase envelope keys around a
// snake_case knowledge base block.
//
//nolint:tagliatelle // upstream wire format
type initRequest struct {
	EnvInfo                    envInfo           `json:"envInfo"`
	ByKeyword                  string            `json:"byKeyword"`
	RelatedURL                 string            `json:"relatedUrl"`
	SceneType                  int               `json:"sceneType"`
	MsgsLimit                  int               `json:"msgsLimit"`
	ForbidAutoAddToHistoryList bool              `json:"forbidAutoAddToHistoryList"`
	KnowledgeBaseInfo          knowledgeBaseInfo `json:"knowledgeBaseInfoWithFolder"`
}

type envInfo struct {
	RobotType    int `json:"robotType"`    //nolint:tagliatelle // upstream wire format
	InteractType int `json:"interactType"` //nolint:tagliatelle // upstream wire format
}

//nolint:tagliatelle // upstream wire format
type knowledgeBaseInfo struct {
	KnowledgeBaseID string   `json:"knowledge_base_id"`
	FolderIDs       []string `json:"folder_ids"`
}

type initResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	SessionID string `json:"session_id"` //nolint:tagliatelle // upstream wire format
}
