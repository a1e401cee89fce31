package stream

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

const (
	// sessionIDLength matches the ids the web client generates when the
	// init endpoint was skipped.
	sessionIDLength = 24

	// uskeyBytes is the entropy of the per-request device key.
	uskeyBytes = 32
)

// guidPattern extracts the device GUID from the x-ima-cookie header. An
// empty value is taken as-is; only a missing pair falls back.
var guidPattern = regexp.MustCompile(`IMA-GUID=([^;]*)`)

// qaRequest is the wire body of the QA endpoint.
//
//nolint:tagliatelle // upstream wire format
type qaRequest struct {
	SessionID    string      `json:"session_id"`
	RobotType    int         `json:"robot_type"`
	Question     string      `json:"question"`
	QuestionType int         `json:"question_type"`
	ClientID     string      `json:"client_id"`
	CommandInfo  commandInfo `json:"command_info"`
	ModelInfo    modelInfo   `json:"model_info"`
	HistoryInfo  struct{}    `json:"history_info"`
	DeviceInfo   deviceInfo  `json:"device_info"`
}

//nolint:tagliatelle // upstream wire format
type commandInfo struct {
	Type            int             `json:"type"`
	KnowledgeQAInfo knowledgeQAInfo `json:"knowledge_qa_info"`
}

//nolint:tagliatelle // upstream wire format
type knowledgeQAInfo struct {
	Tags         []string `json:"tags"`
	KnowledgeIDs []string `json:"knowledge_ids"`
}

//nolint:tagliatelle // upstream wire format
type modelInfo struct {
	ModelType         int  `json:"model_type"`
	EnableEnhancement bool `json:"enable_enhancement"`
}

//nolint:tagliatelle // upstream wire format
type deviceInfo struct {
	USKey         string `json:"uskey"`
	USKeyBusInfos string `json:"uskey_bus_infos_input"`
}

// buildQARequest assembles the question body around a session id from the
// init endpoint, falling back to a generated one.
func buildQARequest(cfg *config.Config, sessionID, question string) qaRequest {
	if sessionID == "" {
		sessionID = newSessionID()
	}

	return qaRequest{
		SessionID:    sessionID,
		RobotType:    transport.RobotType,
		Question:     question,
		QuestionType: transport.QuestionType,
		ClientID:     cfg.ClientID,
		CommandInfo: commandInfo{
			Type: transport.CommandTypeKnowledgeQA,
			KnowledgeQAInfo: knowledgeQAInfo{
				Tags:         []string{},
				KnowledgeIDs: []string{},
			},
		},
		ModelInfo: modelInfo{
			ModelType:         transport.ModelType,
			EnableEnhancement: false,
		},
		DeviceInfo: deviceInfo{
			USKey:         newUSKey(),
			USKeyBusInfos: busInfosInput(cfg.XIMACookie, time.Now()),
		},
	}
}

// busInfosInput derives the device bus marker from the IMA-GUID cookie pair,
// stamped with the current unix second.
func busInfosInput(xIMACookie string, now time.Time) string {
	guid := "default_guid"
	if match := guidPattern.FindStringSubmatch(xIMACookie); match != nil {
		guid = match[1]
	}

	return guid + "_" + strconv.FormatInt(now.Unix(), 10)
}

// newSessionID generates a fallback session id in the web client's alphabet.
func newSessionID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, sessionIDLength)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}

	return string(b)
}

// newUSKey generates the per-request device key.
func newUSKey() string {
	b := make([]byte, uskeyBytes)
	_, _ = cryptorand.Read(b)

	return base64.StdEncoding.EncodeToString(b)
}
