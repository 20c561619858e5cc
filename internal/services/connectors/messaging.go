package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// MessagingConnector fetches channel history from the Slack Web API.
// User-id to display-name resolution is cached per fetch run, not on the
// connector, so concurrent runs never share state.
type MessagingConnector struct {
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewMessagingConnector creates a messaging connector
func NewMessagingConnector(config *common.MessagingConfig, logger arbor.ILogger) (*MessagingConnector, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid messaging timeout '%s': %w", config.Timeout, err)
	}

	return &MessagingConnector{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Source returns the connector's source type
func (c *MessagingConnector) Source() string {
	return models.SourceMessaging
}

// fetchRun holds per-run state for one Fetch call
type fetchRun struct {
	token     string
	nameCache map[string]string
}

type slackMessage struct {
	Type       string `json:"type"`
	User       string `json:"user"`
	Text       string `json:"text"`
	TS         string `json:"ts"`
	ThreadTS   string `json:"thread_ts"`
	ReplyCount int    `json:"reply_count"`
}

type slackHistoryResponse struct {
	OK       bool           `json:"ok"`
	Error    string         `json:"error"`
	Messages []slackMessage `json:"messages"`
	HasMore  bool           `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// Fetch retrieves history for every selected channel in the request window.
// A failure in one channel is logged and absorbed so the remaining channels
// still contribute their messages.
func (c *MessagingConnector) Fetch(ctx context.Context, req interfaces.FetchRequest) (*models.Corpus, error) {
	if len(req.ChannelIDs) == 0 {
		return &models.Corpus{}, nil
	}

	run := &fetchRun{
		token:     req.Token,
		nameCache: make(map[string]string),
	}

	corpus := &models.Corpus{}
	failed := 0
	for _, channelID := range req.ChannelIDs {
		messages, err := c.fetchChannel(ctx, run, channelID, req.DateFrom, req.DateTo)
		if err != nil {
			failed++
			c.logger.Warn().
				Err(err).
				Str("channel_id", channelID).
				Msg("Channel fetch failed, continuing with remaining channels")
			continue
		}
		corpus.Messages = append(corpus.Messages, messages...)
	}

	// Only fail the source when every channel failed
	if failed > 0 && failed == len(req.ChannelIDs) {
		return nil, fmt.Errorf("%w: all %d channels failed", models.ErrConnector, failed)
	}

	c.logger.Debug().
		Int("message_count", len(corpus.Messages)).
		Int("failed_channels", failed).
		Msg("Messaging fetch completed")

	return corpus, nil
}

func (c *MessagingConnector) fetchChannel(ctx context.Context, run *fetchRun, channelID string, from, to time.Time) ([]models.ChannelMessage, error) {
	channelName, err := c.resolveChannelName(ctx, run, channelID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("oldest", strconv.FormatInt(from.Unix(), 10))
	query.Set("latest", strconv.FormatInt(to.Unix(), 10))
	query.Set("inclusive", "true")
	query.Set("limit", "200")

	var history slackHistoryResponse
	if err := c.callSlack(ctx, run, "conversations.history", query, &history); err != nil {
		return nil, err
	}
	if !history.OK {
		return nil, fmt.Errorf("%w: conversations.history failed: %s", models.ErrConnector, history.Error)
	}

	messages := make([]models.ChannelMessage, 0, len(history.Messages))
	for _, raw := range history.Messages {
		msg := c.normalizeMessage(ctx, run, raw, channelID, channelName)

		// A parent message carries its flattened replies, excluding
		// itself since it is already the top-level message.
		if raw.ReplyCount > 0 && (raw.ThreadTS == "" || raw.ThreadTS == raw.TS) {
			replies, err := c.fetchReplies(ctx, run, channelID, channelName, raw.TS)
			if err != nil {
				return nil, err
			}
			msg.ThreadReplies = replies
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func (c *MessagingConnector) fetchReplies(ctx context.Context, run *fetchRun, channelID, channelName, threadTS string) ([]models.ChannelMessage, error) {
	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("ts", threadTS)
	query.Set("limit", "200")

	var response slackHistoryResponse
	if err := c.callSlack(ctx, run, "conversations.replies", query, &response); err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("%w: conversations.replies failed: %s", models.ErrConnector, response.Error)
	}

	replies := make([]models.ChannelMessage, 0, len(response.Messages))
	for _, raw := range response.Messages {
		if raw.TS == threadTS {
			continue // parent message
		}
		replies = append(replies, c.normalizeMessage(ctx, run, raw, channelID, channelName))
	}

	return replies, nil
}

func (c *MessagingConnector) normalizeMessage(ctx context.Context, run *fetchRun, raw slackMessage, channelID, channelName string) models.ChannelMessage {
	return models.ChannelMessage{
		ChannelID:   channelID,
		ChannelName: channelName,
		UserID:      raw.User,
		UserName:    c.resolveUserName(ctx, run, raw.User),
		Text:        raw.Text,
		Timestamp:   parseSlackTS(raw.TS),
	}
}

// resolveUserName resolves a user id to a display name through the per-run
// cache. Resolution failures degrade to the raw user id.
func (c *MessagingConnector) resolveUserName(ctx context.Context, run *fetchRun, userID string) string {
	if userID == "" {
		return ""
	}
	if name, ok := run.nameCache[userID]; ok {
		return name
	}

	query := url.Values{}
	query.Set("user", userID)

	var response struct {
		OK   bool `json:"ok"`
		User struct {
			Name    string `json:"name"`
			Profile struct {
				DisplayName string `json:"display_name"`
				RealName    string `json:"real_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.callSlack(ctx, run, "users.info", query, &response); err != nil || !response.OK {
		run.nameCache[userID] = userID
		return userID
	}

	name := response.User.Profile.DisplayName
	if name == "" {
		name = response.User.Profile.RealName
	}
	if name == "" {
		name = response.User.Name
	}
	if name == "" {
		name = userID
	}

	run.nameCache[userID] = name
	return name
}

func (c *MessagingConnector) resolveChannelName(ctx context.Context, run *fetchRun, channelID string) (string, error) {
	query := url.Values{}
	query.Set("channel", channelID)

	var response struct {
		OK      bool   `json:"ok"`
		Error   string `json:"error"`
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
	}
	if err := c.callSlack(ctx, run, "conversations.info", query, &response); err != nil {
		return "", err
	}
	if !response.OK {
		return "", fmt.Errorf("%w: conversations.info failed: %s", models.ErrConnector, response.Error)
	}
	return response.Channel.Name, nil
}

func (c *MessagingConnector) callSlack(ctx context.Context, run *fetchRun, method string, query url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, method, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", models.ErrConnector, method, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+run.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", models.ErrConnector, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", models.ErrConnector, method, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid %s response: %v", models.ErrConnector, method, err)
	}
	return nil
}

// parseSlackTS converts Slack's "seconds.fraction" timestamp to time.Time
func parseSlackTS(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	seconds, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(seconds), 0).UTC()
}
