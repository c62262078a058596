// Package device is the local notification center: it holds scheduled
// requests, device capabilities, permission and push token, registered
// categories and channels, and the received/response listeners.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/storage"
)

const (
	KeyScheduled  = "scheduled_notifications"
	KeyDelivered  = "delivered_notifications"
	KeyPushToken  = "device_push_token"
	KeyPermission = "notification_permission"

	maxDelivered = 100
)

var (
	ErrNotDelivered  = errors.New("notification not delivered")
	ErrNoListener    = errors.New("no response listener attached")
	ErrNotPermitted  = errors.New("notification permission not granted")
	ErrUnknownAction = errors.New("action not registered for notification category")
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

type PermissionStatus string

const (
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
)

// Channel is an Android notification channel.
type Channel struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Importance       string  `json:"importance"`
	VibrationPattern []int64 `json:"vibration_pattern"`
	LightColor       string  `json:"light_color"`
}

type Options struct {
	Platform  Platform
	Simulated bool
	// PermissionAnswer is what the user answers when asked for permission.
	PermissionAnswer PermissionStatus
}

type (
	ReceivedListener func(n model.ScheduledNotification)
	ResponseListener func(ctx context.Context, resp model.Response) error
)

// Subscription identifies an attached listener.
type Subscription struct {
	id string
}

type Center struct {
	mu         sync.Mutex
	kv         storage.KV
	opts       Options
	logger     *slog.Logger
	pending    []model.ScheduledNotification
	delivered  []model.ScheduledNotification
	categories map[string][]model.Action
	channels   map[string]Channel
	received   map[string]ReceivedListener
	responses  map[string]ResponseListener
	onChange   func()
}

func NewCenter(kv storage.KV, opts Options, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Platform == "" {
		opts.Platform = PlatformAndroid
	}
	if opts.PermissionAnswer == "" {
		opts.PermissionAnswer = PermissionGranted
	}
	return &Center{
		kv:         kv,
		opts:       opts,
		logger:     logger,
		categories: make(map[string][]model.Action),
		channels:   make(map[string]Channel),
		received:   make(map[string]ReceivedListener),
		responses:  make(map[string]ResponseListener),
	}
}

// Load restores scheduled and delivered notifications from the store.
func (c *Center) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := storage.GetJSON(c.kv, KeyScheduled, &c.pending); err != nil {
		return fmt.Errorf("load scheduled notifications: %w", err)
	}
	if _, err := storage.GetJSON(c.kv, KeyDelivered, &c.delivered); err != nil {
		return fmt.Errorf("load delivered notifications: %w", err)
	}
	sortByTrigger(c.pending)
	return nil
}

// SetOnChange sets a callback invoked after the scheduled set changes.
func (c *Center) SetOnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Center) Platform() Platform {
	return c.opts.Platform
}

func (c *Center) IsPhysicalDevice() bool {
	return !c.opts.Simulated
}

func (c *Center) Schedule(ctx context.Context, content model.Content, trigger time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if !c.permittedLocked() {
		c.mu.Unlock()
		return "", ErrNotPermitted
	}
	req := model.ScheduledNotification{
		Identifier: uuid.New().String(),
		Content:    content,
		Trigger:    trigger,
	}
	c.pending = append(c.pending, req)
	sortByTrigger(c.pending)
	err := c.savePendingLocked()
	if err != nil {
		c.pending = removeByID(c.pending, req.Identifier)
	}
	onChange := c.onChange
	c.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("schedule notification: %w", err)
	}
	if onChange != nil {
		onChange()
	}
	return req.Identifier, nil
}

// Cancel removes a scheduled request. Unknown identifiers are ignored.
func (c *Center) Cancel(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	before := len(c.pending)
	c.pending = removeByID(c.pending, identifier)
	if len(c.pending) == before {
		c.mu.Unlock()
		return nil
	}
	err := c.savePendingLocked()
	onChange := c.onChange
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("cancel notification %s: %w", identifier, err)
	}
	if onChange != nil {
		onChange()
	}
	return nil
}

// Scheduled returns a copy of the pending requests ordered by trigger.
func (c *Center) Scheduled(ctx context.Context) ([]model.ScheduledNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ScheduledNotification, len(c.pending))
	copy(out, c.pending)
	return out, nil
}

func (c *Center) CancelAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.pending = nil
	err := c.kv.Remove(KeyScheduled)
	onChange := c.onChange
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("cancel all notifications: %w", err)
	}
	if onChange != nil {
		onChange()
	}
	return nil
}

// NextTrigger returns the earliest pending trigger. Nothing is due while
// permission is not granted.
func (c *Center) NextTrigger() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 || !c.permittedLocked() {
		return time.Time{}, false
	}
	return c.pending[0].Trigger, true
}

// TakeDue removes and returns every request whose trigger is not after now.
// Taken requests move to the delivered history. Requests stay pending while
// permission is not granted.
func (c *Center) TakeDue(now time.Time) []model.ScheduledNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.permittedLocked() {
		return nil
	}

	var due, rest []model.ScheduledNotification
	for _, n := range c.pending {
		if n.Trigger.After(now) {
			rest = append(rest, n)
		} else {
			due = append(due, n)
		}
	}
	if len(due) == 0 {
		return nil
	}

	c.pending = rest
	c.delivered = append(c.delivered, due...)
	if len(c.delivered) > maxDelivered {
		c.delivered = c.delivered[len(c.delivered)-maxDelivered:]
	}

	if err := c.savePendingLocked(); err != nil {
		c.logger.Error("Failed to save scheduled notifications", "error", err)
	}
	if err := storage.SetJSON(c.kv, KeyDelivered, c.delivered); err != nil {
		c.logger.Error("Failed to save delivered notifications", "error", err)
	}
	return due
}

// Delivered returns the delivered history, newest last.
func (c *Center) Delivered() []model.ScheduledNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ScheduledNotification, len(c.delivered))
	copy(out, c.delivered)
	return out
}

func (c *Center) SetCategory(ctx context.Context, identifier string, actions []model.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories[identifier] = append([]model.Action(nil), actions...)
	return nil
}

// Category returns a copy of the actions registered for identifier.
func (c *Center) Category(identifier string) ([]model.Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	actions, ok := c.categories[identifier]
	return append([]model.Action(nil), actions...), ok
}

// SetChannel creates or replaces an Android notification channel.
func (c *Center) SetChannel(ctx context.Context, ch Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.opts.Platform != PlatformAndroid {
		return fmt.Errorf("notification channels are not supported on %s", c.opts.Platform)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch
	return nil
}

func (c *Center) Channel(id string) (Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	return ch, ok
}

func (c *Center) PermissionStatus(ctx context.Context) (PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := c.kv.Get(KeyPermission)
	if !ok {
		return PermissionUndetermined, nil
	}
	return PermissionStatus(v), nil
}

// RequestPermission asks the user and records the answer.
func (c *Center) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	answer := c.opts.PermissionAnswer
	if err := c.kv.Set(KeyPermission, string(answer)); err != nil {
		c.logger.Warn("Failed to persist permission answer", "error", err)
	}
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return answer, nil
}

func (c *Center) permittedLocked() bool {
	v, _ := c.kv.Get(KeyPermission)
	return PermissionStatus(v) == PermissionGranted
}

// DevicePushToken returns the device token, minting one on first use.
func (c *Center) DevicePushToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !c.IsPhysicalDevice() {
		return "", errors.New("push tokens are unavailable on simulated devices")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token, ok := c.kv.Get(KeyPushToken); ok && token != "" {
		return token, nil
	}
	token := uuid.New().String()
	if err := c.kv.Set(KeyPushToken, token); err != nil {
		return "", fmt.Errorf("persist push token: %w", err)
	}
	return token, nil
}

func (c *Center) AddReceivedListener(fn ReceivedListener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := Subscription{id: uuid.New().String()}
	c.received[sub.id] = fn
	return sub
}

func (c *Center) AddResponseListener(fn ResponseListener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := Subscription{id: uuid.New().String()}
	c.responses[sub.id] = fn
	return sub
}

func (c *Center) RemoveSubscription(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.received, sub.id)
	delete(c.responses, sub.id)
}

// ListenerCount reports attached received and response listeners.
func (c *Center) ListenerCount() (received, responses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received), len(c.responses)
}

// Notify passes a fired notification to the received listeners.
func (c *Center) Notify(n model.ScheduledNotification) {
	c.mu.Lock()
	listeners := make([]ReceivedListener, 0, len(c.received))
	for _, fn := range c.received {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}

// Lookup finds a delivered notification, newest first.
func (c *Center) Lookup(identifier string) (model.ScheduledNotification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(identifier)
}

// Respond delivers the user's action on a delivered notification to the
// response listeners. The action must be DEFAULT or one registered for the
// notification's category.
func (c *Center) Respond(ctx context.Context, identifier, action string) error {
	c.mu.Lock()
	found, ok := c.lookupLocked(identifier)
	allowed := ok && c.actionAllowedLocked(found.Content.CategoryIdentifier, action)
	listeners := make([]ResponseListener, 0, len(c.responses))
	for _, fn := range c.responses {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotDelivered, identifier)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if len(listeners) == 0 {
		return ErrNoListener
	}

	resp := model.Response{ActionIdentifier: action, Notification: found}
	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Center) lookupLocked(identifier string) (model.ScheduledNotification, bool) {
	for i := len(c.delivered) - 1; i >= 0; i-- {
		if c.delivered[i].Identifier == identifier {
			return c.delivered[i], true
		}
	}
	return model.ScheduledNotification{}, false
}

func (c *Center) actionAllowedLocked(category, action string) bool {
	if action == model.ActionDefault {
		return true
	}
	for _, a := range c.categories[category] {
		if a.Identifier == action {
			return true
		}
	}
	return false
}

func (c *Center) savePendingLocked() error {
	if len(c.pending) == 0 {
		return c.kv.Remove(KeyScheduled)
	}
	return storage.SetJSON(c.kv, KeyScheduled, c.pending)
}

func sortByTrigger(ns []model.ScheduledNotification) {
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].Trigger.Before(ns[j].Trigger)
	})
}

func removeByID(ns []model.ScheduledNotification, identifier string) []model.ScheduledNotification {
	out := ns[:0]
	for _, n := range ns {
		if n.Identifier != identifier {
			out = append(out, n)
		}
	}
	return out
}
