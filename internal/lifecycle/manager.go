// Package lifecycle brings the notification subsystem up and tears it down.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/noahxzhu/plantcare-notify/internal/device"
	"github.com/noahxzhu/plantcare-notify/internal/model"
)

var (
	ErrUnsupportedDevice = errors.New("must use physical device for notifications")
	ErrPermissionDenied  = errors.New("permission not granted for notifications")
	ErrTokenAcquisition  = errors.New("failed to get push token")
)

type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitializing  State = "INITIALIZING"
	StateReady         State = "READY"
	StateFailed        State = "FAILED"
)

// DefaultChannel is the Android channel every reminder is posted to.
var DefaultChannel = device.Channel{
	ID:               model.DefaultChannelID,
	Name:             "Plant Care",
	Importance:       "max",
	VibrationPattern: []int64{0, 250, 250, 250},
	LightColor:       "#228B22",
}

// Device is the notification center as seen during setup and teardown.
type Device interface {
	IsPhysicalDevice() bool
	Platform() device.Platform
	PermissionStatus(ctx context.Context) (device.PermissionStatus, error)
	RequestPermission(ctx context.Context) (device.PermissionStatus, error)
	SetChannel(ctx context.Context, ch device.Channel) error
	DevicePushToken(ctx context.Context) (string, error)
	SetCategory(ctx context.Context, identifier string, actions []model.Action) error
	AddReceivedListener(fn device.ReceivedListener) device.Subscription
	AddResponseListener(fn device.ResponseListener) device.Subscription
	RemoveSubscription(sub device.Subscription)
	CancelAll(ctx context.Context) error
}

type StateStore interface {
	Load() model.NotificationState
	Save(state model.NotificationState)
}

type Journal interface {
	Record(typ, message string, data map[string]any)
	Clear()
}

type Handlers struct {
	OnNotificationReceived device.ReceivedListener
	OnNotificationResponse device.ResponseListener
	OnError                func(err error)
}

type Manager struct {
	mu      sync.Mutex
	device  Device
	states  StateStore
	journal Journal
	logger  *slog.Logger

	state         State
	notification  model.NotificationState
	subscriptions []device.Subscription
}

// NewManager restores the last persisted NotificationState.
func NewManager(dev Device, states StateStore, journal Journal, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		device:       dev,
		states:       states,
		journal:      journal,
		logger:       logger,
		state:        StateUninitialized,
		notification: states.Load(),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NotificationState returns a copy of the current record.
func (m *Manager) NotificationState() model.NotificationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notification
}

// Init runs the setup chain. On failure the error is recorded in the
// NotificationState, passed to h.OnError and false is returned. Completed
// steps are not rolled back.
func (m *Manager) Init(ctx context.Context, h Handlers) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transition(StateInitializing)

	token, err := m.setup(ctx, h)
	if err != nil {
		m.notification = model.NotificationState{
			Enabled: false,
			Error:   &model.ErrorRecord{Message: err.Error()},
		}
		m.states.Save(m.notification)
		m.transition(StateFailed)
		m.logger.Error("Notification setup failed", "error", err)
		m.record("init_failed", err.Error(), nil)

		if h.OnError != nil {
			h.OnError(err)
		}
		return false
	}

	m.notification = model.NotificationState{Enabled: true, Token: &token}
	m.states.Save(m.notification)
	m.transition(StateReady)
	return true
}

func (m *Manager) setup(ctx context.Context, h Handlers) (string, error) {
	if !m.device.IsPhysicalDevice() {
		return "", ErrUnsupportedDevice
	}

	status, err := m.device.PermissionStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("get permission status: %w", err)
	}
	if status != device.PermissionGranted {
		status, err = m.device.RequestPermission(ctx)
		if err != nil {
			return "", fmt.Errorf("request permission: %w", err)
		}
	}
	if status != device.PermissionGranted {
		return "", ErrPermissionDenied
	}

	if m.device.Platform() == device.PlatformAndroid {
		if err := m.device.SetChannel(ctx, DefaultChannel); err != nil {
			return "", fmt.Errorf("set notification channel: %w", err)
		}
	}

	token, err := m.device.DevicePushToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenAcquisition, err)
	}
	if token == "" {
		return "", ErrTokenAcquisition
	}

	if err := m.device.SetCategory(ctx, model.CategoryWatering, model.WateringActions); err != nil {
		return "", fmt.Errorf("set notification category: %w", err)
	}

	m.removeListenersLocked()
	if h.OnNotificationReceived != nil {
		m.subscriptions = append(m.subscriptions, m.device.AddReceivedListener(h.OnNotificationReceived))
	}
	if h.OnNotificationResponse != nil {
		m.subscriptions = append(m.subscriptions, m.device.AddResponseListener(h.OnNotificationResponse))
	}

	return token, nil
}

// Cleanup cancels every scheduled notification, detaches listeners, clears
// the debug log and resets the NotificationState. The state is reset even
// when cancelling fails.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.device.CancelAll(ctx)
	if err != nil {
		m.logger.Error("Failed to cancel all notifications", "error", err)
		err = fmt.Errorf("cancel all notifications: %w", err)
	}

	m.removeListenersLocked()
	m.notification = model.DefaultNotificationState()
	m.states.Save(m.notification)
	if m.journal != nil {
		m.journal.Clear()
	}
	m.state = StateUninitialized
	m.logger.Info("Notification subsystem cleaned up")
	return err
}

func (m *Manager) removeListenersLocked() {
	for _, sub := range m.subscriptions {
		m.device.RemoveSubscription(sub)
	}
	m.subscriptions = nil
}

func (m *Manager) transition(to State) {
	from := m.state
	m.state = to
	m.logger.Info("Notification lifecycle transition", "from", from, "to", to)
	m.record("lifecycle", fmt.Sprintf("%s -> %s", from, to), nil)
}

func (m *Manager) record(typ, message string, data map[string]any) {
	if m.journal != nil {
		m.journal.Record(typ, message, data)
	}
}
