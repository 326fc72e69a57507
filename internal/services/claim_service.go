package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardshift/internal/config"
	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"
)

var (
	// ErrOfferNotPending means the offer had already left pending (expired,
	// declined or accepted elsewhere) when the accept write ran.
	ErrOfferNotPending = errors.New("offer is no longer pending")
	// ErrShiftAlreadyClaimed means another candidate claimed the shift first.
	ErrShiftAlreadyClaimed = errors.New("shift has already been claimed")
)

// ClaimService turns a pending offer into a shift assignment. The shift claim
// is a conditional write so that concurrent accepts for one shift have
// exactly one winner.
type ClaimService interface {
	Accept(ctx context.Context, offer *models.ShiftOffer) error
	// Decline is best effort. Failures are logged and never returned.
	Decline(ctx context.Context, offer *models.ShiftOffer)
}

type claimService struct {
	offers         interfaces.OfferRepository
	shifts         interfaces.ShiftRepository
	lostRacePolicy string
	now            func() time.Time
	logger         *logger.Logger
}

func NewClaimService(store *interfaces.Store, lostRacePolicy string, log *logger.Logger) ClaimService {
	if lostRacePolicy == "" {
		lostRacePolicy = config.LostRaceRevert
	}
	return &claimService{
		offers:         store.Offers,
		shifts:         store.Shifts,
		lostRacePolicy: lostRacePolicy,
		now:            time.Now,
		logger:         log,
	}
}

func (s *claimService) Accept(ctx context.Context, offer *models.ShiftOffer) error {
	log := s.logger.WithOfferID(offer.ID).WithUserID(offer.PersonnelID).WithField("shift_id", offer.ShiftID)
	now := s.now()

	res, err := s.offers.MarkAccepted(ctx, offer.ID, now)
	if err != nil {
		return fmt.Errorf("failed to accept offer: %w", err)
	}
	if !res.Applied() {
		log.Info("Offer was no longer pending at accept time")
		return ErrOfferNotPending
	}

	res, err = s.shifts.Claim(ctx, offer.ShiftID, offer.PersonnelID, now)
	if err != nil {
		// The claim was never decided, so give the offer back for a retry.
		if reopened, rerr := s.offers.ReopenAccepted(ctx, offer.ID); rerr != nil || !reopened.Applied() {
			log.WithError(rerr).Warnf("Failed to reopen offer after claim error (result=%s)", reopened)
		}
		return fmt.Errorf("failed to claim shift: %w", err)
	}

	if !res.Applied() {
		if s.lostRacePolicy == config.LostRaceReportSuccess {
			log.Warn("Shift was claimed by another candidate; reporting success to the device")
			log.LogOfferEvent(offer.ID, utils.EventOfferLost, map[string]interface{}{"policy": s.lostRacePolicy})
			s.expireSiblings(ctx, offer, log)
			return nil
		}

		if reverted, rerr := s.offers.RevertAccepted(ctx, offer.ID, now); rerr != nil || !reverted.Applied() {
			log.WithError(rerr).Warnf("Failed to revert offer after losing the claim (result=%s)", reverted)
		}
		log.LogOfferEvent(offer.ID, utils.EventOfferLost, map[string]interface{}{"policy": s.lostRacePolicy})
		return ErrShiftAlreadyClaimed
	}

	log.LogOfferEvent(offer.ID, utils.EventOfferAccepted, nil)
	s.expireSiblings(ctx, offer, log)
	return nil
}

func (s *claimService) expireSiblings(ctx context.Context, offer *models.ShiftOffer, log *logger.Logger) {
	n, err := s.offers.ExpireSiblings(ctx, offer.ShiftID, offer.ID)
	if err != nil {
		log.WithError(err).Warn("Failed to expire sibling offers")
		return
	}
	if n > 0 {
		log.WithField("expired", n).Debug("Expired sibling offers")
	}
}

func (s *claimService) Decline(ctx context.Context, offer *models.ShiftOffer) {
	log := s.logger.WithOfferID(offer.ID).WithUserID(offer.PersonnelID)

	res, err := s.offers.MarkDeclined(ctx, offer.ID, s.now())
	if err != nil {
		log.WithError(err).Warn("Failed to decline offer")
		return
	}
	if !res.Applied() {
		log.Debug("Decline ignored, offer no longer pending")
		return
	}

	log.LogOfferEvent(offer.ID, utils.EventOfferDeclined, nil)
}
