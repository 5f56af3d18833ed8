package domain

import (
	"fmt"
	"time"
)

// Channel — канал доставки уведомления.
type Channel string

const (
	ChannelBasic    Channel = "BASIC"
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
	ChannelCombined Channel = "COMBINED"
)

// DeliveryMode — способ композиции каналов.
type DeliveryMode string

const (
	DeliverySingle     DeliveryMode = "single"
	DeliverySequential DeliveryMode = "combined_sequential"
	DeliveryConcurrent DeliveryMode = "combined_concurrent"
)

// NotificationRequest — что и кому доставить.
type NotificationRequest struct {
	Type           Channel
	Title          string
	Message        string
	Recipient      string
	RecipientEmail string
	RecipientPhone string
	OrderID        string
}

// NotificationResult — исход одной доставки (или их агрегата для combined-режимов).
type NotificationResult struct {
	Success   bool
	Message   string
	Channel   Channel
	Recipient string
	Timestamp time.Time
	Attempts  int
	// Exhausted — все попытки повтора исчерпаны.
	Exhausted bool
	// Channels заполняется только для combined-режимов.
	Channels []NotificationResult
}

// ChannelResult ищет результат конкретного канала внутри агрегата.
func (r NotificationResult) ChannelResult(ch Channel) (NotificationResult, bool) {
	if r.Channel == ch {
		return r, true
	}
	for _, sub := range r.Channels {
		if sub.Channel == ch {
			return sub, true
		}
	}
	return NotificationResult{}, false
}

// Err переводит результат в ошибку таксономии: nil при успехе,
// ErrRetryExhausted после исчерпания повторов, иначе ErrDependencyFailure.
func (r NotificationResult) Err() error {
	switch {
	case r.Success:
		return nil
	case r.Exhausted:
		return fmt.Errorf("%s: %s: %w", r.Channel, r.Message, ErrRetryExhausted)
	default:
		return fmt.Errorf("%s: %s: %w", r.Channel, r.Message, ErrDependencyFailure)
	}
}
