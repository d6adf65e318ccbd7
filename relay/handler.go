// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/tradewire-foundation/tradewire/admission"
	"github.com/tradewire-foundation/tradewire/notify"
	"github.com/tradewire-foundation/tradewire/protocol"
	"github.com/tradewire-foundation/tradewire/store"
)

// processSignal runs one signal through validation, the admission
// gate, and the durable store, returning the confirmation to deliver.
//
// A returned error is always transient (store contention): the caller
// queues the signal for retry. Permanent problems (invalid content,
// admission denial, unknown open reference) come back as error
// confirmations, never as errors, so they are terminal on the first
// pass.
func (s *Server) processSignal(ctx context.Context, sig protocol.Signal) (protocol.Confirmation, error) {
	var validationErr *protocol.ValidationError
	if err := sig.Validate(); errors.As(err, &validationErr) {
		return errorConfirmation(sig, validationErr.Reason), nil
	}

	paused, err := s.store.Paused(ctx)
	if err != nil {
		return protocol.Confirmation{}, err
	}
	acceptedToday := 0
	if s.cfg.Admission.DailyCap > 0 && !sig.IsClose() {
		if acceptedToday, err = s.store.TodayCount(ctx); err != nil {
			return protocol.Confirmation{}, err
		}
	}
	state := admission.State{
		Paused:        paused,
		LastAccepted:  s.lastAcceptedTime(),
		AcceptedToday: acceptedToday,
	}
	decision := admission.Admit(s.cfg.Admission, state, sig.IsClose(), s.clock.Now())
	if !decision.Allow {
		s.logger.Info("signal denied",
			"client_msg_id", sig.ClientMsgID,
			"reason", decision.Reason,
		)
		return errorConfirmation(sig, decision.Detail), nil
	}

	if sig.IsClose() {
		return s.processClose(ctx, sig)
	}
	return s.processOpen(ctx, sig)
}

func (s *Server) processOpen(ctx context.Context, sig protocol.Signal) (protocol.Confirmation, error) {
	signalID, err := s.store.Accept(ctx, store.Signal{
		ClientMsgID: sig.ClientMsgID,
		Action:      sig.Action,
		Symbol:      sig.Symbol,
		Price:       sig.Price,
	})
	if err != nil {
		return protocol.Confirmation{}, err
	}

	s.mu.Lock()
	s.lastAccepted = s.clock.Now()
	s.mu.Unlock()

	s.logger.Info("signal accepted",
		"signal_id", signalID,
		"client_msg_id", sig.ClientMsgID,
		"action", sig.Action,
		"symbol", sig.Symbol,
		"price", sig.Price,
	)
	s.alertOpened(ctx, signalID)

	return protocol.Confirmation{
		Status:      protocol.StatusSuccess,
		Message:     "signal accepted",
		SignalID:    signalID,
		ClientMsgID: sig.ClientMsgID,
	}, nil
}

func (s *Server) processClose(ctx context.Context, sig protocol.Signal) (protocol.Confirmation, error) {
	closed, err := s.store.CloseSignal(ctx, sig.OpenSignalID, sig.Price)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorConfirmation(sig, "unknown open signal"), nil
	case errors.Is(err, store.ErrNotClosable):
		return errorConfirmation(sig, "referenced signal is not a confirmed open"), nil
	case err != nil:
		return protocol.Confirmation{}, err
	}

	s.logger.Info("signal closed",
		"signal_id", closed.ID,
		"client_msg_id", sig.ClientMsgID,
		"symbol", closed.Symbol,
		"profit_loss", closed.ProfitLoss,
	)
	s.alertClosed(ctx, closed)

	return protocol.Confirmation{
		Status:   protocol.StatusSuccess,
		Message:  "signal closed",
		SignalID: closed.ID,
		// The bridge routes CLOSE replies by either ID; carrying the
		// opening signal's ID covers closes submitted out of band.
		ClientMsgID:     sig.ClientMsgID,
		OpenClientMsgID: closed.ClientMsgID,
	}, nil
}

// alertOpened notifies administrators about an accepted open.
// Best effort: alert failures never affect the confirmation.
func (s *Server) alertOpened(ctx context.Context, signalID int64) {
	record, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		s.logger.Warn("loading signal for alert", "signal_id", signalID, "error", err)
		return
	}
	stats, err := s.store.TodayStats(ctx)
	if err != nil {
		s.logger.Warn("loading day stats for alert", "error", err)
	}
	subject, body := notify.FormatOpened(record, stats)
	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		s.logger.Warn("alert delivery failed", "signal_id", signalID, "error", err)
	}
}

func (s *Server) alertClosed(ctx context.Context, closed store.Signal) {
	stats, err := s.store.TodayStats(ctx)
	if err != nil {
		s.logger.Warn("loading day stats for alert", "error", err)
	}
	subject, body := notify.FormatClosed(closed, stats)
	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		s.logger.Warn("alert delivery failed", "signal_id", closed.ID, "error", err)
	}
}

func (s *Server) lastAcceptedTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccepted
}

func errorConfirmation(sig protocol.Signal, message string) protocol.Confirmation {
	return protocol.Confirmation{
		Status:      protocol.StatusError,
		Message:     message,
		ClientMsgID: sig.ClientMsgID,
	}
}
