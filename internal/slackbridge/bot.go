// ABOUTME: Slack Socket Mode frontend feeding mentions, DMs, and thread replies
// ABOUTME: into the bridge engine and posting the replies back in-thread

package slackbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/2389/flow-bridge/internal/bridge"
	"github.com/2389/flow-bridge/internal/store"
)

// SessionReader checks whether a thread already has a live conversation
type SessionReader interface {
	GetSession(ctx context.Context, threadID string) (*store.Session, error)
}

// Config holds the Slack credentials for the bot
type Config struct {
	BotToken string // xoxb-...
	AppToken string // xapp-... for Socket Mode
	Debug    bool
}

// Bot runs the Slack Socket Mode event loop. It answers mentions and DMs,
// and keeps replying in any thread it has an active session for even
// without a mention.
type Bot struct {
	client     *slack.Client
	socketMode *socketmode.Client
	engine     *bridge.Engine
	sessions   SessionReader
	botUserID  string
	logger     *slog.Logger
}

// New creates a Bot. Both tokens are required; the app token must carry
// the Socket Mode prefix.
func New(cfg Config, engine *bridge.Engine, sessions SessionReader) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("bot token is required")
	}
	if cfg.AppToken == "" {
		return nil, errors.New("app token is required for Socket Mode")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, errors.New("app token must start with xapp-")
	}

	client := slack.New(
		cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	)

	return &Bot{
		client:     client,
		socketMode: socketmode.New(client, socketmode.OptionDebug(cfg.Debug)),
		engine:     engine,
		sessions:   sessions,
		logger:     slog.Default().With("component", "slackbridge"),
	}, nil
}

// Run starts the event loop and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	authResp, err := b.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	b.botUserID = authResp.UserID
	b.logger.Info("connected to slack", "bot_user", b.botUserID, "team", authResp.Team)

	go b.consumeEvents(ctx, b.socketMode.Events)

	return b.socketMode.RunContext(ctx)
}

// consumeEvents drains the socket mode event channel until it closes or
// the context is cancelled, so the goroutine does not outlive Run.
func (b *Bot) consumeEvents(ctx context.Context, events chan socketmode.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("connecting to socket mode")
	case socketmode.EventTypeConnected:
		b.logger.Info("socket mode connected")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("socket mode connection error", "data", evt.Data)
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		b.socketMode.Ack(*evt.Request)
		// Agent calls can run for minutes; never block the event loop
		go b.handleEventsAPI(ctx, apiEvent)
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.process(ctx, inboundFromMention(ev))
	case *slackevents.MessageEvent:
		if ev.User == b.botUserID || ev.BotID != "" || ev.SubType != "" {
			return
		}
		msg, ok := b.inboundFromMessage(ctx, ev)
		if !ok {
			return
		}
		b.process(ctx, msg)
	}
}

func inboundFromMention(ev *slackevents.AppMentionEvent) bridge.InboundMessage {
	return bridge.InboundMessage{
		EventID:   ev.TimeStamp,
		ChannelID: ev.Channel,
		ThreadID:  threadKey(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp),
		SenderID:  ev.User,
		Text:      ev.Text,
	}
}

// inboundFromMessage accepts DMs unconditionally and channel messages only
// when they continue a thread the bot already has a session for. Everything
// else is ambient channel chatter and is ignored.
func (b *Bot) inboundFromMessage(ctx context.Context, ev *slackevents.MessageEvent) (bridge.InboundMessage, bool) {
	isDM := ev.ChannelType == "im"
	threadID := threadKey(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp)

	if !isDM {
		if ev.ThreadTimeStamp == "" {
			return bridge.InboundMessage{}, false
		}
		// Mentions arrive separately as AppMentionEvent; skip them here
		if strings.Contains(ev.Text, "<@"+b.botUserID+">") {
			return bridge.InboundMessage{}, false
		}
		if _, err := b.sessions.GetSession(ctx, threadID); err != nil {
			return bridge.InboundMessage{}, false
		}
	}

	return bridge.InboundMessage{
		EventID:         ev.TimeStamp,
		ChannelID:       ev.Channel,
		ThreadID:        threadID,
		SenderID:        ev.User,
		Text:            ev.Text,
		IsDirectMessage: isDM,
	}, true
}

func (b *Bot) process(ctx context.Context, msg bridge.InboundMessage) {
	text := b.stripMention(msg.Text)
	if text == "" {
		return
	}

	msg.Text = text
	reply, err := b.engine.HandleMessage(ctx, msg)
	if err != nil {
		b.logger.Error("message handling failed",
			"channel", msg.ChannelID, "thread", msg.ThreadID, "error", err)
		b.post(msg.ChannelID, msg.ThreadID, "Something went wrong on my end. Please try again.")
		return
	}
	if reply == nil {
		return
	}
	b.post(reply.ChannelID, reply.ThreadID, reply.Text)
}

// post sends reply text into the thread, splitting long replies into
// multiple messages.
func (b *Bot) post(channelID, threadID, text string) {
	threadTS := threadTimestamp(threadID)
	for _, chunk := range SplitMessage(text, MaxMessageLen) {
		_, _, err := b.client.PostMessage(channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionTS(threadTS),
		)
		if err != nil {
			b.logger.Error("failed to post reply", "channel", channelID, "error", err)
			return
		}
	}
}

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// stripMention removes bot mention markup so the agent sees clean text.
func (b *Bot) stripMention(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

// threadKey builds the thread identity for a message. Slack thread replies
// carry the root timestamp; top-level messages start their own thread.
func threadKey(channelID, threadTS, ts string) string {
	if threadTS != "" {
		return channelID + ":" + threadTS
	}
	return channelID + ":" + ts
}

// threadTimestamp recovers the Slack thread_ts from a thread key.
func threadTimestamp(threadID string) string {
	if i := strings.LastIndex(threadID, ":"); i >= 0 {
		return threadID[i+1:]
	}
	return threadID
}
