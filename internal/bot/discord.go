// Package bot connects the economy core to Discord.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"growtube/internal/interact"

	"github.com/bwmarrin/discordgo"
)

const (
	sendTimeout   = 10 * time.Second
	handleTimeout = 5 * time.Minute
)

type Options struct {
	Token        string
	Prefix       string
	LogChannelID string
}

type Bot struct {
	session  *discordgo.Session
	log      *slog.Logger
	opts     Options
	prompts  *prompts
	commands *Commands
}

func New(opts Options, logger *slog.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	b := &Bot{
		session: s,
		log:     logger.With("component", "bot"),
		opts:    opts,
		prompts: newPrompts(),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onInteractionCreate)
	return b, nil
}

// SetCommands installs the command table. It must be called before Open.
func (b *Bot) SetCommands(c *Commands) {
	b.commands = c
}

func (b *Bot) Open() error {
	if b.commands == nil {
		return errors.New("bot has no commands")
	}
	return b.session.Open()
}

func (b *Bot) Close() error {
	return b.session.Close()
}

// Run holds the gateway connection open until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	<-ctx.Done()
	return b.Close()
}

func (b *Bot) Latency() time.Duration {
	return b.session.HeartbeatLatency()
}

// Channel returns a conversation that posts to channelID, or a no-op one
// when channelID is empty.
func (b *Bot) Channel(channelID string) interact.Conversation {
	if channelID == "" {
		return interact.Nop{}
	}
	return &conversation{bot: b, channelID: channelID}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("connected to discord", "user", r.User.String(), "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	name, args, ok := splitCommand(m.Content, b.opts.Prefix)
	if !ok {
		return
	}
	author, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	conv := &conversation{bot: b, channelID: m.ChannelID, replyTo: m.Reference()}
	req := &Request{Author: author, Name: name, Args: args, Conv: conv}
	start := time.Now()
	err = b.commands.Run(ctx, req)
	if err == nil {
		b.log.Debug("command handled", "command", name, "user", author, "took", time.Since(start))
		return
	}

	text, internal := ErrorReply(err, b.opts.Prefix)
	if internal {
		b.log.Error("command failed", "command", name, "user", author, "err", err)
		b.report(name, author, err)
	}
	if _, sendErr := conv.Send(ctx, text); sendErr != nil {
		b.log.Warn("error reply failed", "command", name, "err", sendErr)
	}
}

// report posts an internal failure to the log channel.
func (b *Bot) report(name string, author int64, err error) {
	if b.opts.LogChannelID == "" {
		return
	}
	text := fmt.Sprintf("command: `%s`\nauthor: <@%d>\nwhen: <t:%d:F>\n```\n%v\n```", name, author, time.Now().Unix(), err)
	if _, sendErr := b.session.ChannelMessageSend(b.opts.LogChannelID, text); sendErr != nil {
		b.log.Warn("error report failed", "err", sendErr)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	id, yes, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	user := i.User
	if i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if res, responder := b.prompts.resolve(id, userID, yes); res == resolveWrongUser {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: fmt.Sprintf("Only <@%d> can respond to this message!", responder),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		b.log.Warn("interaction response failed", "err", err)
	}
}

// conversation is bound to one channel. It outlives the command that
// created it, so it never holds on to the command's context.
type conversation struct {
	bot       *Bot
	channelID string
	replyTo   *discordgo.MessageReference
}

var allowUserMentions = &discordgo.MessageAllowedMentions{
	Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
}

func (c *conversation) Send(ctx context.Context, text string) (interact.Message, error) {
	msg, err := c.bot.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content:         text,
		Reference:       c.replyTo,
		AllowedMentions: allowUserMentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &message{session: c.bot.session, channelID: msg.ChannelID, id: msg.ID}, nil
}

func (c *conversation) ChannelID() string { return c.channelID }

func (c *conversation) Confirm(ctx context.Context, responder int64, prompt string, timeout time.Duration) (bool, error) {
	id, answer := c.bot.prompts.open(responder)
	defer c.bot.prompts.close(id)

	sent, err := c.bot.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content:         prompt,
		Components:      confirmButtons(id, false),
		AllowedMentions: allowUserMentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var result bool
	var waitErr error
	select {
	case result = <-answer:
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	editCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	edit := discordgo.NewMessageEdit(sent.ChannelID, sent.ID)
	components := confirmButtons(id, true)
	edit.Components = &components
	if _, err := c.bot.session.ChannelMessageEditComplex(edit, discordgo.WithContext(editCtx)); err != nil {
		c.bot.log.Debug("disable prompt buttons failed", "err", err)
	}
	return result, waitErr
}

func confirmButtons(id string, disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Accept", Style: discordgo.SuccessButton, CustomID: customID(id, true), Disabled: disabled},
			discordgo.Button{Label: "Deny", Style: discordgo.DangerButton, CustomID: customID(id, false), Disabled: disabled},
		}},
	}
}

type message struct {
	session   *discordgo.Session
	channelID string
	id        string
}

func (m *message) Edit(ctx context.Context, text string) error {
	_, err := m.session.ChannelMessageEdit(m.channelID, m.id, text, discordgo.WithContext(ctx))
	return err
}
