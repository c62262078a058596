package model

import "time"

type NotificationType string

const (
	TypeWatering    NotificationType = "WATERING"
	TypeMaintenance NotificationType = "MAINTENANCE"
)

type Kind string

const (
	KindDueDay      Kind = "DUE_DAY"
	KindDayBefore   Kind = "DAY_BEFORE"
	KindRemindLater Kind = "REMIND_LATER"
)

// Action identifiers attached to every watering notification.
const (
	ActionMarkWatered = "MARK_WATERED"
	ActionRemindLater = "REMIND_LATER"
	ActionDefault     = "DEFAULT"
)

const CategoryWatering = "WATERING"

// DefaultChannelID names the Android channel reminders are posted to.
const DefaultChannelID = "default"

type Action struct {
	Identifier  string `json:"identifier"`
	ButtonTitle string `json:"button_title"`
}

// WateringActions are registered under CategoryWatering at startup.
var WateringActions = []Action{
	{Identifier: ActionMarkWatered, ButtonTitle: "Mark as Watered"},
	{Identifier: ActionRemindLater, ButtonTitle: "Remind in 1 hour"},
}

// Payload is the data carried inside a fired notification.
type Payload struct {
	PlantID   int64            `json:"plantId"`
	Type      NotificationType `json:"type"`
	Kind      Kind             `json:"kind,omitempty"`
	Timestamp string           `json:"timestamp"` // creation time of the request, RFC 3339
}

type Content struct {
	Title              string  `json:"title"`
	Body               string  `json:"body"`
	Data               Payload `json:"data"`
	CategoryIdentifier string  `json:"category_identifier"`
}

// Notification is a reminder built for one plant and one trigger instant,
// before it is handed to the notification center.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   Content   `json:"content"`
	Trigger   time.Time `json:"trigger"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledNotification is a request held by the notification center.
type ScheduledNotification struct {
	Identifier string    `json:"identifier"`
	Content    Content   `json:"content"`
	Trigger    time.Time `json:"trigger"`
}

func (n ScheduledNotification) PlantID() int64 {
	return n.Content.Data.PlantID
}

func (n ScheduledNotification) Kind() Kind {
	return n.Content.Data.Kind
}

// Response is a user action taken on a delivered notification.
type Response struct {
	ActionIdentifier string                `json:"action_identifier"`
	Notification     ScheduledNotification `json:"notification"`
}

type ErrorRecord struct {
	Message string `json:"message"`
}

// NotificationState is a point-in-time snapshot of the notification subsystem,
// persisted between runs.
type NotificationState struct {
	Enabled bool         `json:"enabled"`
	Token   *string      `json:"token"`
	Error   *ErrorRecord `json:"error"`
}

func DefaultNotificationState() NotificationState {
	return NotificationState{}
}
