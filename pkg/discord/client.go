package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/async"
	"github.com/platinummonkey/rollcall/pkg/observability"
	"github.com/platinummonkey/rollcall/pkg/roles"
)

const (
	// MemberPageSize is the largest page Discord returns
	MemberPageSize = 1000

	roleCacheSize = 128
	roleCacheTTL  = 10 * time.Minute
	roleWorkers   = 4
	changeTimeout = 10 * time.Second
)

// Session is the part of *discordgo.Session the client uses
type Session interface {
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// NewSession creates a REST session authenticated as a bot
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return session, nil
}

// Client is a roles.Platform for one guild
type Client struct {
	session Session
	guildID string
	roles   *expirable.LRU[string, roles.Role]
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

var _ roles.Platform = (*Client)(nil)

// NewClient creates a Client for guildID
func NewClient(session Session, guildID string, logger logrus.FieldLogger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		session: session,
		guildID: guildID,
		roles:   expirable.NewLRU[string, roles.Role](roleCacheSize, nil, roleCacheTTL),
		logger:  logger.WithField("component", "discord"),
		metrics: metrics,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, roles.ErrPlatformUnavailable, err)
}

// isUnknownMember matches only the member and user not-found codes. Other
// 404s, such as an unknown guild, are platform failures.
func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
		return true
	}
	return false
}

// FindOrCreateRole returns the guild role called name, creating it if needed
func (c *Client) FindOrCreateRole(ctx context.Context, name, reason string) (roles.Role, error) {
	if role, ok := c.roles.Get(name); ok {
		return role, nil
	}

	existing, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return roles.Role{}, unavailable("failed to list roles", err)
	}
	for _, r := range existing {
		if r.Name == name {
			role := roles.Role{ID: roles.RoleID(r.ID), Name: r.Name}
			c.roles.Add(name, role)
			return role, nil
		}
	}

	created, err := c.session.GuildRoleCreate(c.guildID, &discordgo.RoleParams{Name: name},
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return roles.Role{}, unavailable("failed to create role", err)
	}

	role := roles.Role{ID: roles.RoleID(created.ID), Name: created.Name}
	c.roles.Add(name, role)
	c.logger.WithFields(logrus.Fields{"role": name, "role_id": created.ID}).Info("Created role")
	return role, nil
}

type roleChange struct {
	action string
	role   roles.RoleID
}

// ApplyRoleDiff applies every change of diff concurrently. Any failed change
// fails the whole diff.
func (c *Client) ApplyRoleDiff(ctx context.Context, subjectID string, diff roles.Diff, reason string) error {
	changes := make([]roleChange, 0, diff.Len())
	for _, id := range diff.ToAssign() {
		changes = append(changes, roleChange{action: "assign", role: id})
	}
	for _, id := range diff.ToRemove() {
		changes = append(changes, roleChange{action: "remove", role: id})
	}
	if len(changes) == 0 {
		return nil
	}

	errs := async.Batch(ctx, changes, roleWorkers, "role changes", changeTimeout,
		func(ctx context.Context, change roleChange) error {
			opts := []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)}
			var err error
			if change.action == "assign" {
				err = c.session.GuildMemberRoleAdd(c.guildID, subjectID, string(change.role), opts...)
			} else {
				err = c.session.GuildMemberRoleRemove(c.guildID, subjectID, string(change.role), opts...)
			}
			c.metrics.RecordRoleChange(change.action, err)
			if err != nil {
				return fmt.Errorf("%s %s: %w", change.action, change.role, err)
			}
			return nil
		})
	if len(errs) > 0 {
		return unavailable(fmt.Sprintf("%d of %d role changes failed", len(errs), len(changes)), errors.Join(errs...))
	}
	return nil
}

// AssignedRoles returns the roles of a member, or present=false if the
// subject is not in the guild
func (c *Client) AssignedRoles(ctx context.Context, subjectID string) (roles.Set, bool, error) {
	member, err := c.session.GuildMember(c.guildID, subjectID, discordgo.WithContext(ctx))
	if isUnknownMember(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("failed to get member", err)
	}

	assigned := roles.NewSet()
	for _, id := range member.Roles {
		assigned[roles.RoleID(id)] = struct{}{}
	}
	return assigned, true, nil
}

// ListMembers returns the ids of the members following after, in id order
func (c *Client) ListMembers(ctx context.Context, after string) ([]string, error) {
	members, err := c.session.GuildMembers(c.guildID, after, MemberPageSize, discordgo.WithContext(ctx))
	if err != nil {
		return nil, unavailable("failed to list members", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// SendDirectMessage sends text to a subject and returns a link to the message
func (c *Client) SendDirectMessage(ctx context.Context, subjectID, text string) (string, error) {
	channel, err := c.session.UserChannelCreate(subjectID, discordgo.WithContext(ctx))
	if err != nil {
		return "", unavailable("failed to open direct message channel", err)
	}
	msg, err := c.session.ChannelMessageSend(channel.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", unavailable("failed to send direct message", err)
	}
	return fmt.Sprintf("https://discord.com/channels/@me/%s/%s", channel.ID, msg.ID), nil
}
