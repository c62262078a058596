package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/noahxzhu/plantcare-notify/internal/device"
	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/reminder"
	"github.com/noahxzhu/plantcare-notify/internal/storage"
	"github.com/noahxzhu/plantcare-notify/internal/watering"
)

// maxNameLength keeps plant rows well inside the pg_notify payload limit.
const maxNameLength = 200

type plantRequest struct {
	Name              string  `json:"name"`
	LastWatered       *string `json:"last_watered"`
	WateringFrequency *int    `json:"watering_frequency"`
}

type plantStatus struct {
	Plant        model.Plant   `json:"plant"`
	NextWatering *time.Time    `json:"next_watering"`
	Relative     string        `json:"relative,omitempty"`
	Status       watering.Info `json:"status"`
}

// NotificationView is a scheduled reminder with its trigger relative to now.
type NotificationView struct {
	model.ScheduledNotification
	Relative string `json:"relative"`
}

// actionPage feeds templates/action.html. A FormAction asks for
// confirmation, Done reports success, anything else shows Message.
type actionPage struct {
	Notification model.ScheduledNotification
	Button       string
	FormAction   string
	Done         bool
	Message      string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		Lifecycle:    s.deps.Lifecycle.State(),
		Notification: s.deps.Lifecycle.NotificationState(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Journal.Entries()
	if entries == nil {
		entries = []storage.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Plants.List(r.Context())
	if err != nil {
		s.serverError(w, "list plants", err)
		return
	}
	if err := s.deps.Scheduler.Resync(r.Context(), list); err != nil {
		s.serverError(w, "reschedule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "plants": len(list)})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Lifecycle.Cleanup(r.Context()); err != nil {
		s.serverError(w, "cleanup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Plants.List(r.Context())
	if err != nil {
		s.serverError(w, "list plants", err)
		return
	}
	if list == nil {
		list = []model.Plant{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	var req plantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plant := model.Plant{Name: req.Name}
	if err := s.applyPlantRequest(&plant, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.deps.Plants.Create(r.Context(), plant)
	if err != nil {
		s.serverError(w, "create plant", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	plant, ok := s.loadPlant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	plant, ok := s.loadPlant(w, r)
	if !ok {
		return
	}

	var req plantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		if err := validateName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		plant.Name = req.Name
	}
	if err := s.applyPlantRequest(&plant, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Plants.Update(r.Context(), plant); err != nil {
		s.plantError(w, "update plant", err)
		return
	}
	writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := plantID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Plants.Delete(r.Context(), id); err != nil {
		s.plantError(w, "delete plant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlantStatus(w http.ResponseWriter, r *http.Request) {
	plant, ok := s.loadPlant(w, r)
	if !ok {
		return
	}

	now := s.now()
	resp := plantStatus{Plant: plant}
	if next, ok := watering.NextWateringDate(plant.LastWatered, plant.WateringFrequencyDays, s.deps.Scheduler.Location()); ok {
		resp.NextWatering = &next
		resp.Relative = watering.FormatRelative(next, now)
	}
	resp.Status = watering.StatusInfo(resp.NextWatering, now)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedulePlant(w http.ResponseWriter, r *http.Request) {
	plant, ok := s.loadPlant(w, r)
	if !ok {
		return
	}

	if err := s.deps.Scheduler.ScheduleWateringNotifications(r.Context(), plant); err != nil {
		var missing *reminder.MissingFieldError
		if errors.As(err, &missing) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.serverError(w, "schedule plant", err)
		return
	}

	s.writeNotifications(w, r, plant.ID)
}

func (s *Server) handleCancelPlant(w http.ResponseWriter, r *http.Request) {
	id, ok := plantID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Scheduler.CancelPlantNotifications(r.Context(), id); err != nil {
		s.serverError(w, "cancel plant notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	var id int64
	if raw := r.URL.Query().Get("plant_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid plant_id")
			return
		}
		id = parsed
	}
	s.writeNotifications(w, r, id)
}

// handleActionConfirm renders a page that posts the action back, so link
// previews and prefetchers never act on a reminder.
func (s *Server) handleActionConfirm(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "notificationID")
	action := chi.URLParam(r, "action")

	n, ok := s.deps.Responder.Lookup(identifier)
	if !ok {
		renderTemplate(w, http.StatusNotFound, "action.html", actionPage{Message: "This reminder is no longer available."})
		return
	}
	renderTemplate(w, http.StatusOK, "action.html", actionPage{
		Notification: n,
		Button:       s.buttonTitle(n, action),
		FormAction:   r.URL.RequestURI(),
	})
}

// handleAction reports the action to the device. Listeners run in the
// background, so success is 202.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "notificationID")
	action := chi.URLParam(r, "action")

	status, message := http.StatusAccepted, ""
	err := s.deps.Responder.Respond(r.Context(), identifier, action)
	switch {
	case errors.Is(err, device.ErrNotDelivered):
		status, message = http.StatusNotFound, "notification not found"
	case errors.Is(err, device.ErrUnknownAction):
		status, message = http.StatusBadRequest, "action not available for this notification"
	case errors.Is(err, device.ErrNoListener):
		status, message = http.StatusServiceUnavailable, "notifications are not initialized"
	case err != nil:
		s.logger.Error("Request failed", "op", "handle action", "error", err)
		status, message = http.StatusInternalServerError, "handle action failed"
	}

	if isFormPost(r) {
		page := actionPage{Message: message}
		if status == http.StatusAccepted {
			n, _ := s.deps.Responder.Lookup(identifier)
			page = actionPage{Notification: n, Button: s.buttonTitle(n, action), Done: true}
		}
		renderTemplate(w, status, "action.html", page)
		return
	}

	if status != http.StatusAccepted {
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":          "accepted",
		"notification_id": identifier,
		"action":          action,
	})
}

func (s *Server) buttonTitle(n model.ScheduledNotification, action string) string {
	actions, _ := s.deps.Responder.Category(n.Content.CategoryIdentifier)
	for _, a := range actions {
		if a.Identifier == action {
			return a.ButtonTitle
		}
	}
	if action == model.ActionDefault {
		return "Open"
	}
	return action
}

func isFormPost(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func (s *Server) writeNotifications(w http.ResponseWriter, r *http.Request, plantID int64) {
	list, err := s.deps.Scheduler.ScheduledNotifications(r.Context(), plantID)
	if err != nil {
		s.serverError(w, "list notifications", err)
		return
	}

	now := s.now()
	views := make([]NotificationView, 0, len(list))
	for _, n := range list {
		views = append(views, NotificationView{ScheduledNotification: n, Relative: watering.FormatRelative(n.Trigger, now)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) applyPlantRequest(plant *model.Plant, req plantRequest) error {
	if req.LastWatered != nil {
		t, err := watering.ParseLastWatered(*req.LastWatered, s.deps.Scheduler.Location())
		if err != nil {
			return err
		}
		plant.LastWatered = t
	}
	if req.WateringFrequency != nil {
		if *req.WateringFrequency < 0 {
			return errors.New("watering_frequency must not be negative")
		}
		plant.WateringFrequencyDays = *req.WateringFrequency
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return nil
}

func (s *Server) loadPlant(w http.ResponseWriter, r *http.Request) (model.Plant, bool) {
	id, ok := plantID(w, r)
	if !ok {
		return model.Plant{}, false
	}
	plant, err := s.deps.Plants.GetPlant(r.Context(), id)
	if err != nil {
		s.plantError(w, "get plant", err)
		return model.Plant{}, false
	}
	return plant, true
}

func (s *Server) plantError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrPlantNotFound) {
		writeError(w, http.StatusNotFound, "plant not found")
		return
	}
	s.serverError(w, op, err)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("Request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func plantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "plantID"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid plant id")
		return 0, false
	}
	return id, true
}
