package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"guardshift/internal/config"
	"guardshift/internal/models"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/cache"
	"guardshift/pkg/logger"
	"guardshift/pkg/push"
	"guardshift/pkg/sms"
)

// PushTypeNewShiftOffer is the data type carried by offer push alerts. A
// device that receives it in the foreground reports it back as a wake hint.
const PushTypeNewShiftOffer = "new_shift_offer"

// Presence reports whether a candidate currently has a live device channel.
type Presence interface {
	IsOnline(personnelID string) bool
}

type Pusher interface {
	Send(ctx context.Context, platform string, notification *push.Notification) (*push.Result, error)
}

// AlertCache is the subset of the Redis cache used for alert bookkeeping.
type AlertCache interface {
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

type Device struct {
	Platform  string    `json:"platform"`
	Token     string    `json:"token"`
	Phone     string    `json:"phone,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AlertService interface {
	OfferAlerter
	RegisterDevice(ctx context.Context, personnelID string, req *validators.RegisterDeviceRequest) error
	Device(ctx context.Context, personnelID string) (*Device, error)
}

type alertService struct {
	presence Presence
	pusher   Pusher
	sms      sms.Provider
	cache    AlertCache
	config   *config.AlertsConfig
	now      func() time.Time
	logger   *logger.Logger
}

// NewAlertService builds the redundant alert path. pusher and smsProvider
// may be nil when the channel is disabled.
func NewAlertService(presence Presence, pusher Pusher, smsProvider sms.Provider, alertCache AlertCache, cfg *config.AlertsConfig, log *logger.Logger) AlertService {
	if alertCache == nil {
		alertCache = NewMemoryAlertCache()
	}
	return &alertService{
		presence: presence,
		pusher:   pusher,
		sms:      smsProvider,
		cache:    alertCache,
		config:   cfg,
		now:      time.Now,
		logger:   log.WithField("component", "alerts"),
	}
}

func (s *alertService) RegisterDevice(ctx context.Context, personnelID string, req *validators.RegisterDeviceRequest) error {
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		return errs
	}

	device := &Device{
		Platform:  req.Platform,
		Token:     req.Token,
		Phone:     utils.NormalizePhone(req.Phone),
		UpdatedAt: s.now(),
	}
	if err := s.cache.Set(ctx, cache.DeviceKey(personnelID), device, 0); err != nil {
		return fmt.Errorf("failed to store device: %w", err)
	}

	s.logger.WithUserID(personnelID).WithField("platform", device.Platform).Info("Device registered")
	return nil
}

func (s *alertService) Device(ctx context.Context, personnelID string) (*Device, error) {
	var device Device
	if err := s.cache.Get(ctx, cache.DeviceKey(personnelID), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// OfferCreated alerts a candidate with no live channel, by push and then by
// SMS when push is unavailable or fails. Each offer is alerted at most once;
// the reservation is released again when no channel reached the candidate.
func (s *alertService) OfferCreated(ctx context.Context, offer *models.ShiftOffer) {
	log := s.logger.WithOfferID(offer.ID).WithUserID(offer.PersonnelID)

	if s.presence != nil && s.presence.IsOnline(offer.PersonnelID) {
		log.Debug("Candidate online, skipping redundant alert")
		return
	}

	first, err := s.cache.Once(ctx, cache.AlertKey(offer.ID), s.config.DedupeTTL)
	if err != nil {
		log.WithError(err).Warn("Failed to reserve offer alert")
		return
	}
	if !first {
		log.Debug("Offer already alerted")
		return
	}

	device, err := s.Device(ctx, offer.PersonnelID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			log.Info("No registered device for offline candidate")
		} else {
			log.WithError(err).Warn("Failed to load device")
		}
		s.release(ctx, offer.ID, log)
		return
	}

	if s.pusher != nil && device.Token != "" {
		res, err := s.pusher.Send(ctx, device.Platform, s.notification(offer, device.Token))
		if err == nil {
			log.LogOfferEvent(offer.ID, utils.EventOfferAlerted, map[string]interface{}{
				"channel":    "push",
				"platform":   device.Platform,
				"message_id": res.MessageID,
			})
			return
		}
		log.WithError(err).Warn("Push alert failed, falling back to SMS")
	}

	if s.sms == nil || device.Phone == "" {
		log.Warn("No alert channel reached the candidate")
		s.release(ctx, offer.ID, log)
		return
	}

	res, err := s.sms.Send(ctx, &sms.Message{
		To:   device.Phone,
		Body: fmt.Sprintf(s.config.SMSTemplate, offer.VenueName, offer.ShiftDate, offer.HourlyRate),
	})
	if err != nil {
		log.WithError(err).Error("SMS alert failed")
		s.release(ctx, offer.ID, log)
		return
	}
	log.LogOfferEvent(offer.ID, utils.EventOfferAlerted, map[string]interface{}{
		"channel":    "sms",
		"to":         utils.MaskPhone(device.Phone),
		"message_id": res.MessageID,
	})
}

func (s *alertService) release(ctx context.Context, offerID string, log *logger.Logger) {
	if err := s.cache.Delete(ctx, cache.AlertKey(offerID)); err != nil {
		log.WithError(err).Warn("Failed to release offer alert")
	}
}

func (s *alertService) notification(offer *models.ShiftOffer, token string) *push.Notification {
	n := &push.Notification{
		Token: token,
		Title: "New shift offer",
		Body:  fmt.Sprintf("%s, %s %s-%s", offer.VenueName, offer.ShiftDate, offer.StartTime, offer.EndTime),
		Data: map[string]string{
			"type":     PushTypeNewShiftOffer,
			"offer_id": offer.ID,
			"shift_id": offer.ShiftID,
		},
		CollapseKey: offer.ID,
		Urgent:      true,
	}
	if ttl := offer.ExpiresAt.Sub(s.now()); ttl > 0 {
		n.TTL = ttl
	}
	return n
}

// memoryAlertCache stands in for Redis in single-process deployments.
type memoryAlertCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryAlertCache() AlertCache {
	return &memoryAlertCache{
		values:  make(map[string][]byte),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *memoryAlertCache) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveLocked(key) {
		return false, nil
	}
	m.setLocked(key, []byte("1"), ttl)
	return true, nil
}

func (m *memoryAlertCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, data, expiration)
	return nil
}

func (m *memoryAlertCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	if !m.liveLocked(key) {
		m.mu.Unlock()
		return cache.ErrCacheMiss
	}
	data := m.values[key]
	m.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (m *memoryAlertCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *memoryAlertCache) setLocked(key string, data []byte, ttl time.Duration) {
	m.values[key] = data
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
}

func (m *memoryAlertCache) liveLocked(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	if exp, ok := m.expires[key]; ok && !m.now().Before(exp) {
		delete(m.values, key)
		delete(m.expires, key)
		return false
	}
	return true
}

// PresenceFunc adapts a plain function to Presence.
type PresenceFunc func(personnelID string) bool

func (f PresenceFunc) IsOnline(personnelID string) bool { return f(personnelID) }
