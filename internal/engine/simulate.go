package engine

import (
	"context"
	"strings"

	"harvestlink/internal/ussd"
)

// Simulate plays a dial-in the way an aggregator does: an empty first round,
// then one round per input carrying every choice so far. It stops at the
// first final reply.
func (d Driver) Simulate(ctx context.Context, sessionID, phone string, inputs []string) ([]Reply, error) {
	var replies []Reply
	var typed []string
	for round := 0; round <= len(inputs); round++ {
		if round > 0 {
			typed = append(typed, inputs[round-1])
		}
		reply, err := d.Handle(ctx, Request{
			SessionID:   sessionID,
			PhoneNumber: phone,
			ServiceCode: d.serviceCode(),
			Text:        strings.Join(typed, ussd.Separator),
		})
		if err != nil {
			return replies, err
		}
		replies = append(replies, reply)
		if reply.Final() {
			break
		}
	}
	return replies, nil
}
