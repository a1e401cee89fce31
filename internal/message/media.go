package message

// MediaInfo describes one knowledge-base source consulted for an answer.
//
//nolint:tagliatelle // upstream wire format
type MediaInfo struct {
	ID             string             `json:"id"`
	Type           int                `json:"type"`
	Title          string             `json:"title"`
	Subtitle       string             `json:"subtitle,omitempty"`
	Introduction   string             `json:"introduction,omitempty"`
	Logo           string             `json:"logo,omitempty"`
	Cover          string             `json:"cover,omitempty"`
	JumpURL        string             `json:"jump_url,omitempty"`
	JumpURLInfo    map[string]any     `json:"jump_url_info,omitempty"`
	Timestamp      int64              `json:"timestamp,omitempty"`
	Index          int                `json:"index,omitempty"`
	Publisher      string             `json:"publisher,omitempty"`
	Tips           string             `json:"tips,omitempty"`
	RoleType       int                `json:"role_type,omitempty"`
	PermissionInfo map[string]any     `json:"permission_info,omitempty"`
	SourceType     int                `json:"source_type,omitempty"`
	KnowledgeBase  *KnowledgeBaseInfo `json:"knowledge_base_info,omitempty"`
}

// KnowledgeBaseInfo identifies the knowledge base a source belongs to.
//
//nolint:tagliatelle // upstream wire format
type KnowledgeBaseInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Logo           string `json:"logo,omitempty"`
	Introduction   string `json:"introduction,omitempty"`
	Description    string `json:"description,omitempty"`
	CreatorName    string `json:"creator_name,omitempty"`
	PermissionType int    `json:"permission_type,omitempty"`
}

// KnowledgeSource is the flattened reference summary surfaced to callers.
//
//nolint:tagliatelle // mirrors the upstream field names
type KnowledgeSource struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle,omitempty"`
	Introduction  string `json:"introduction,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
}
