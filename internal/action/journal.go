package action

import (
	"context"

	"github.com/joebot/heyu/internal/journal"
)

// Recorder stores match entries.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// JournalAction records the match in the journal.
type JournalAction struct {
	rec Recorder
}

func NewJournalAction(rec Recorder) *JournalAction {
	return &JournalAction{rec: rec}
}

func (a *JournalAction) Kind() string { return "journal" }

func (a *JournalAction) Run(ctx context.Context, m Match) error {
	ev := NewEvent(m)
	return a.rec.Record(ctx, journal.Entry{
		ID:        ev.ID,
		Rule:      ev.Rule,
		Channel:   ev.Channel,
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
		Sender:    ev.Username,
		Preview:   preview(ev.Text, 120),
		MatchedAt: ev.At,
	})
}
