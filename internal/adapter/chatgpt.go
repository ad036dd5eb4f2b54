package adapter

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pauldavis/2brain/internal/domain"
)

// chatgptMetadataKeys is the whitelist of conversation-level fields copied
// into raw_metadata. Everything else still survives in the raw payload.
var chatgptMetadataKeys = []string{
	"default_model_slug",
	"conversation_origin",
	"plugin_ids",
	"gizmo_id",
	"gizmo_type",
	"is_archived",
	"is_starred",
	"voice",
	"disabled_tool_ids",
	"memory_scope",
	"context_scopes",
}

type chatgptConversation struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Title          string                 `json:"title"`
	CreateTime     *float64               `json:"create_time"`
	UpdateTime     *float64               `json:"update_time"`
	CurrentNode    string                 `json:"current_node"`
	Mapping        map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	Parent   *string         `json:"parent"`
	Children []string        `json:"children"`
	Message  *chatgptMessage `json:"message"`
}

type chatgptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64        `json:"create_time"`
	UpdateTime *float64        `json:"update_time"`
	Content    json.RawMessage `json:"content"`
}

type chatgptContent struct {
	ContentType string            `json:"content_type"`
	Parts       []json.RawMessage `json:"parts"`
}

type chatgptAssetPart struct {
	ContentType  string `json:"content_type"`
	AssetPointer string `json:"asset_pointer"`
	SizeBytes    int64  `json:"size_bytes"`
}

// ChatGPTAdapter parses an unzipped ChatGPT export directory. Each
// conversation's mapping is a tree of message nodes; the adapter emits the
// main path (root to current_node) first among siblings, then off-path edit
// branches in children-array order, all carrying parent node ids so the tree
// survives flattening.
type ChatGPTAdapter struct{}

func NewChatGPTAdapter() *ChatGPTAdapter {
	return &ChatGPTAdapter{}
}

func (a *ChatGPTAdapter) Source() domain.SourceSystem {
	return domain.SourceSystemChatGPT
}

func (a *ChatGPTAdapter) Parse(exportPath string) ([]Conversation, error) {
	rawConversations, err := loadConversationsFile(exportPath)
	if err != nil {
		return nil, domain.NewParseError(exportPath, err)
	}

	resolver := newChatGPTAssetResolver(exportPath)
	sourceFile := filepath.Join(exportPath, "conversations.json")

	conversations := make([]Conversation, 0, len(rawConversations))
	for _, raw := range rawConversations {
		conversations = append(conversations, a.ParseConversation(raw, sourceFile, resolver))
	}
	return conversations, nil
}

// ParseConversation converts one raw conversation object. It is exported so
// the single-document ingest endpoint can feed payloads directly.
func (a *ChatGPTAdapter) ParseConversation(raw json.RawMessage, sourceFile string, resolver *ChatGPTAssetResolver) Conversation {
	if resolver == nil {
		resolver = newChatGPTAssetResolver(filepath.Dir(sourceFile))
	}

	var conv chatgptConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return parseFailure(sourceFile, err)
	}
	if conv.ConversationID == "" {
		return parseFailure(sourceFile, fmt.Errorf("conversation has no conversation_id"))
	}
	if len(conv.Mapping) == 0 {
		return parseFailure(sourceFile, fmt.Errorf("conversation %s has no mapping", conv.ConversationID))
	}

	payload, err := decodePayload(raw)
	if err != nil {
		return parseFailure(sourceFile, err)
	}

	// Go maps lose JSON object order, so recover mapping key order from the
	// raw bytes; it is the only deterministic root ordering the export has.
	mappingOrder, err := mappingKeyOrder(raw)
	if err != nil {
		return parseFailure(sourceFile, err)
	}

	segments := collectChatGPTSegments(conv, mappingOrder, resolver)

	createdAt := timeOrNow(epochToTime(conv.CreateTime))
	updatedAt := createdAt
	if t := epochToTime(conv.UpdateTime); t != nil {
		updatedAt = *t
	}

	rawMetadata := map[string]any{}
	for _, key := range chatgptMetadataKeys {
		if value, ok := payload[key]; ok && value != nil {
			rawMetadata[key] = value
		}
	}

	title := conv.Title
	if title == "" {
		title = "Untitled conversation"
	}

	return Conversation{
		Document: ParsedDocument{
			SourceSystem: domain.SourceSystemChatGPT,
			ExternalID:   conv.ConversationID,
			Title:        title,
			CreatedAt:    createdAt,
			UpdatedAt:    updatedAt,
			RawMetadata:  rawMetadata,
			SourcePath:   sourceFile + "#" + conv.ConversationID,
			RawPayload:   payload,
		},
		Segments: segments,
	}
}

func mappingKeyOrder(raw json.RawMessage) ([]string, error) {
	var envelope struct {
		Mapping json.RawMessage `json:"mapping"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return objectKeys(envelope.Mapping)
}

// collectChatGPTSegments walks the mapping tree depth-first. Parent links
// skip structural nodes without messages, pointing at the nearest ancestor
// that carries one. At each node the child on the current_node path is
// visited first; remaining edit branches follow in children-array order.
func collectChatGPTSegments(conv chatgptConversation, mappingOrder []string, resolver *ChatGPTAssetResolver) []SegmentInput {
	mainPath := map[string]bool{}
	for cursor := conv.CurrentNode; cursor != ""; {
		mainPath[cursor] = true
		node, ok := conv.Mapping[cursor]
		if !ok || node.Parent == nil {
			break
		}
		cursor = *node.Parent
	}

	nearestWithMessage := func(nodeID *string) string {
		for nodeID != nil {
			node, ok := conv.Mapping[*nodeID]
			if !ok {
				return ""
			}
			if node.Message != nil {
				return *nodeID
			}
			nodeID = node.Parent
		}
		return ""
	}

	orderedChildren := func(children []string) []string {
		if len(children) < 2 {
			return children
		}
		ordered := make([]string, len(children))
		copy(ordered, children)
		sort.SliceStable(ordered, func(i, j int) bool {
			return mainPath[ordered[i]] && !mainPath[ordered[j]]
		})
		return ordered
	}

	var segments []SegmentInput
	var visit func(nodeID string)
	visit = func(nodeID string) {
		node, ok := conv.Mapping[nodeID]
		if !ok {
			return
		}
		if node.Message != nil {
			segments = append(segments, buildChatGPTSegment(nodeID, nearestWithMessage(node.Parent), node.Message, resolver))
		}
		for _, childID := range orderedChildren(node.Children) {
			visit(childID)
		}
	}

	for _, nodeID := range mappingOrder {
		if node, ok := conv.Mapping[nodeID]; ok && node.Parent == nil {
			visit(nodeID)
		}
	}
	return segments
}

func buildChatGPTSegment(nodeID, parentNodeID string, message *chatgptMessage, resolver *ChatGPTAssetResolver) SegmentInput {
	var content chatgptContent
	if len(message.Content) > 0 {
		// Unknown content shapes must not fail parsing; the raw content is
		// kept in ContentJSON either way.
		_ = json.Unmarshal(message.Content, &content)
	}

	var markdownParts, plaintextParts []string
	var blocks []BlockInput
	var assets []AssetInput

	for _, part := range content.Parts {
		var text string
		if err := json.Unmarshal(part, &text); err == nil {
			markdownParts = append(markdownParts, text)
			plaintextParts = append(plaintextParts, text)
			blocks = append(blocks, BlockInput{
				BlockType: domain.BlockTypeMarkdown,
				Body:      text,
			})
			continue
		}

		var assetPart chatgptAssetPart
		if err := json.Unmarshal(part, &assetPart); err != nil {
			continue
		}

		contentType := assetPart.ContentType
		if contentType == "" {
			contentType = "unknown_asset"
		}
		pointer := assetPart.AssetPointer
		markdownParts = append(markdownParts, fmt.Sprintf("![%s](%s)", contentType, pointer))
		plaintextParts = append(plaintextParts, fmt.Sprintf("[%s]", contentType))

		assetType := domain.AssetTypeFile
		if strings.Contains(contentType, "image") {
			assetType = domain.AssetTypeImage
		}

		asset := AssetInput{
			AssetType:       assetType,
			SourceReference: pointer,
			SizeBytes:       assetPart.SizeBytes,
		}
		if pointer != "" {
			if resolved := resolver.Resolve(pointer); resolved != "" {
				asset.LocalPath = resolved
				asset.FileName = filepath.Base(resolved)
				asset.MimeType = mime.TypeByExtension(filepath.Ext(resolved))
			}
		}
		assets = append(assets, asset)
	}

	var contentJSON any
	if len(message.Content) > 0 {
		_ = json.Unmarshal(message.Content, &contentJSON)
	}

	markdown := strings.TrimSpace(strings.Join(markdownParts, "\n\n"))
	plaintext := strings.TrimSpace(strings.Join(plaintextParts, " "))
	if plaintext == "" {
		plaintext = markdown
	}

	return SegmentInput{
		NodeID:          nodeID,
		ParentNodeID:    parentNodeID,
		SourceRole:      domain.NormalizeRole(message.Author.Role),
		SegmentType:     domain.SegmentTypeMessage,
		ContentMarkdown: markdown,
		Plaintext:       plaintext,
		ContentJSON:     contentJSON,
		StartedAt:       epochToTime(message.CreateTime),
		EndedAt:         epochToTime(message.UpdateTime),
		RawReference:    nodeID,
		Blocks:          blocks,
		Assets:          assets,
	}
}

// ChatGPTAssetResolver matches asset pointers (file-service://file-XYZ) to
// files in the export directory by name prefix, preferring sanitized copies
// and shorter names.
type ChatGPTAssetResolver struct {
	exportDir string
	cache     map[string]string
}

func newChatGPTAssetResolver(exportDir string) *ChatGPTAssetResolver {
	return &ChatGPTAssetResolver{
		exportDir: exportDir,
		cache:     map[string]string{},
	}
}

// Resolve returns the local path for a pointer, or "" when no export file
// matches. Unresolved pointers are still recorded as assets for backfill.
func (r *ChatGPTAssetResolver) Resolve(pointer string) string {
	if cached, ok := r.cache[pointer]; ok {
		return cached
	}

	token := pointer
	if idx := strings.Index(pointer, "://"); idx >= 0 {
		token = pointer[idx+3:]
	}

	entries, err := os.ReadDir(r.exportDir)
	if err != nil {
		r.cache[pointer] = ""
		return ""
	}

	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), token) {
			matches = append(matches, entry.Name())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		iSanitized := strings.Contains(matches[i], "sanitized")
		jSanitized := strings.Contains(matches[j], "sanitized")
		if iSanitized != jSanitized {
			return iSanitized
		}
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})

	resolved := ""
	if len(matches) > 0 {
		resolved = filepath.Join(r.exportDir, matches[0])
	}
	r.cache[pointer] = resolved
	return resolved
}
