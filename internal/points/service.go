package points

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/notification"
	"github.com/tbc-meetup/walletd/internal/wallet"
)

// JoinRef is the default external reference of a direct meetup join.
func JoinRef(meetupID, userID int64) string {
	return fmt.Sprintf("join-%d-%d", meetupID, userID)
}

// Service spends wallet balance on meetup participation.
type Service struct {
	wallets  *wallet.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a points service.
func NewService(wallets *wallet.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{wallets: wallets, notifier: notifier, logger: logger}
}

// DeductForMeetup debits amount from the user's wallet for meetupID and
// returns the balance afterwards. A repeated externalRef is a no-op.
func (s *Service) DeductForMeetup(ctx context.Context, userID, meetupID, amount int64, externalRef, reason string) (int64, error) {
	if amount <= 0 {
		return 0, wallet.ErrInvalidAmount
	}
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		externalRef = JoinRef(meetupID, userID)
	}
	if reason == "" {
		reason = ledger.ReasonMeetupJoin
	}

	posting, err := s.wallets.Post(ctx, userID, wallet.Movement{
		Type:           ledger.Debit,
		Amount:         amount,
		Reason:         reason,
		RefType:        ledger.RefTypeMeetup,
		RefID:          fmt.Sprintf("%d", meetupID),
		IdempotencyKey: externalRef,
	})
	if err != nil {
		return 0, err
	}

	if posting.Applied {
		s.logger.Info("meetup points deducted",
			slog.Int64("user_id", userID),
			slog.Int64("meetup_id", meetupID),
			slog.Int64("amount", amount),
		)
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:   notification.KindMeetupJoined,
				UserID: userID,
				Body:   fmt.Sprintf("Joined meetup %d for %d points", meetupID, amount),
			})
		}
	}
	return posting.Wallet.Balance, nil
}
