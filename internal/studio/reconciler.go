package studio

import (
	"ugc-studio/internal/client"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/model"
	"ugc-studio/internal/sse"
)

// Reconciler merges stream events into one assistant placeholder.
type Reconciler struct {
	list      *MessageList
	messageID string
	baseURL   string
	done      bool
}

func NewReconciler(list *MessageList, messageID, baseURL string) *Reconciler {
	return &Reconciler{list: list, messageID: messageID, baseURL: baseURL}
}

func (r *Reconciler) MessageID() string {
	return r.messageID
}

// Done reports whether an error event has closed the placeholder.
func (r *Reconciler) Done() bool {
	return r.done
}

// Apply folds one event into the placeholder. A payload that fails to decode
// is returned as an *sse.DecodeError and leaves the list untouched. Events
// after a terminal error and unknown event names are ignored.
func (r *Reconciler) Apply(ev sse.Event) error {
	if r.done {
		return nil
	}

	switch ev.Name {
	case model.EventDelta:
		var p model.DeltaPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if p.Delta == "" {
			return nil
		}
		r.list.Update(r.messageID, func(m *model.ChatMessage) {
			m.Content += p.Delta
		})

	case model.EventImage:
		var p model.ImagePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		var src string
		switch {
		case p.URL != "":
			src = client.ResolveURL(r.baseURL, p.URL)
		case p.Data != "":
			src = model.DataURI(p.MimeType, p.Data)
		default:
			return nil
		}
		r.list.Update(r.messageID, func(m *model.ChatMessage) {
			m.ImageURLs = append(m.ImageURLs, src)
		})

	case model.EventError:
		var p model.ErrorPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		msg := model.DefaultStreamError
		if p.Error != nil {
			msg = *p.Error
		}
		r.Fail(msg)

	default:
		return nil
	}

	metrics.StreamEvents.WithLabelValues(ev.Name).Inc()
	return nil
}

// Fail replaces the placeholder content with msg and stops further updates.
func (r *Reconciler) Fail(msg string) {
	r.list.Update(r.messageID, func(m *model.ChatMessage) {
		m.Content = msg
	})
	r.done = true
}
