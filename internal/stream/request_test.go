package stream

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/transport"
)

func TestBuildQARequest(t *testing.T) {
	cfg := &config.Config{
		ClientID:   "client-1",
		XIMACookie: "IMA-GUID=g-abc; IMA-UID=oabc",
	}

	req := buildQARequest(cfg, "sess-9", "what is ima?")

	assert.Equal(t, "sess-9", req.SessionID)
	assert.Equal(t, transport.RobotType, req.RobotType)
	assert.Equal(t, "what is ima?", req.Question)
	assert.Equal(t, transport.QuestionType, req.QuestionType)
	assert.Equal(t, "client-1", req.ClientID)
	assert.Equal(t, transport.CommandTypeKnowledgeQA, req.CommandInfo.Type)
	assert.Equal(t, transport.ModelType, req.ModelInfo.ModelType)
	assert.False(t, req.ModelInfo.EnableEnhancement)

	decoded, err := base64.StdEncoding.DecodeString(req.DeviceInfo.USKey)
	require.NoError(t, err)
	assert.Len(t, decoded, uskeyBytes)

	assert.Regexp(t, `^g-abc_\d+$`, req.DeviceInfo.USKeyBusInfos)

	// Empty slices and the history placeholder must render as [] and {},
	// the endpoint rejects null fields.
	encoded, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"tags":[]`)
	assert.Contains(t, string(encoded), `"knowledge_ids":[]`)
	assert.Contains(t, string(encoded), `"history_info":{}`)
}

func TestBuildQARequestGeneratesSessionID(t *testing.T) {
	cfg := &config.Config{ClientID: "client-1"}

	req := buildQARequest(cfg, "", "question")

	assert.Regexp(t, `^[a-z0-9]{24}$`, req.SessionID)
}

func TestBusInfosInput(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{
			name:   "guid present",
			cookie: "IMA-UID=oabc; IMA-GUID=g-abc; other=1",
			want:   "g-abc_1700000000",
		},
		{
			name:   "guid empty",
			cookie: "IMA-GUID=; other=1",
			want:   "_1700000000",
		},
		{
			name:   "guid missing",
			cookie: "IMA-UID=oabc",
			want:   "default_guid_1700000000",
		},
		{
			name:   "guid at end of cookie",
			cookie: "IMA-UID=oabc; IMA-GUID=tail",
			want:   "tail_1700000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, busInfosInput(tt.cookie, now))
		})
	}
}

func TestNewSessionID(t *testing.T) {
	a := newSessionID()
	b := newSessionID()

	assert.Regexp(t, `^[a-z0-9]{24}$`, a)
	assert.NotEqual(t, a, b)
}

func TestNewUSKey(t *testing.T) {
	a := newUSKey()
	b := newUSKey()

	decoded, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, decoded, uskeyBytes)
	assert.NotEqual(t, a, b)
}
