package pushover

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/noahxzhu/plantcare-notify/internal/device"
	"github.com/noahxzhu/plantcare-notify/internal/model"
)

// Registry exposes the categories and channels registered on the device.
type Registry interface {
	Category(identifier string) ([]model.Action, bool)
	Channel(id string) (device.Channel, bool)
}

// Presenter sends fired notifications through a Client. Notifications whose
// category is registered carry links back to the action endpoint of the
// HTTP API, one per registered action.
type Presenter struct {
	client    *Client
	registry  Registry
	publicURL string
	linkToken string
}

// NewPresenter builds a presenter whose action links point at publicURL.
// linkToken, when set, is appended to action links so they pass API auth.
func NewPresenter(client *Client, registry Registry, publicURL, linkToken string) *Presenter {
	return &Presenter{
		client:    client,
		registry:  registry,
		publicURL: strings.TrimRight(publicURL, "/"),
		linkToken: linkToken,
	}
}

func (p *Presenter) Present(ctx context.Context, n model.ScheduledNotification) error {
	msg := Message{
		Title:   n.Content.Title,
		Message: html.EscapeString(n.Content.Body),
		HTML:    true,
	}
	if ch, ok := p.registry.Channel(model.DefaultChannelID); ok {
		msg.Priority = priority(ch.Importance)
	}

	actions := p.actions(n.Content.CategoryIdentifier)
	if len(actions) > 0 && p.publicURL != "" {
		msg.URL = p.ActionURL(n.Identifier, actions[0].Identifier)
		msg.URLTitle = actions[0].ButtonTitle

		var b strings.Builder
		b.WriteString(msg.Message)
		for _, a := range actions[1:] {
			fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", html.EscapeString(p.ActionURL(n.Identifier, a.Identifier)), html.EscapeString(a.ButtonTitle))
		}
		msg.Message = b.String()
	}

	if err := p.client.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", n.Identifier, err)
	}
	return nil
}

func (p *Presenter) actions(category string) []model.Action {
	if category == "" {
		return nil
	}
	actions, _ := p.registry.Category(category)
	return actions
}

// priority maps an Android channel importance onto a Pushover priority.
func priority(importance string) int {
	switch importance {
	case "max", "high":
		return 1
	case "low":
		return -1
	case "min":
		return -2
	default:
		return 0
	}
}

// ActionURL is the link that reports action on notification identifier.
func (p *Presenter) ActionURL(identifier, action string) string {
	u := fmt.Sprintf("%s/api/notifications/%s/actions/%s", p.publicURL, url.PathEscape(identifier), url.PathEscape(action))
	if p.linkToken != "" {
		u += "?token=" + url.QueryEscape(p.linkToken)
	}
	return u
}
