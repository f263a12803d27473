// Package notify is the client side of the notification stream: a local
// inbox kept in step with the server by a full fetch plus live pushes.
package notify

import "possale/internal/models"

// Inbox is an immutable list of notifications, newest first, with unique
// ids. Apply returns a new Inbox.
type Inbox struct {
	items []models.Notification
}

// InboxEvent is a message accepted by Inbox.Apply.
type InboxEvent interface {
	inboxEvent()
}

// Seeded replaces the inbox with the result of a full fetch. The server is
// authoritative, so anything not in Items is dropped.
type Seeded struct{ Items []models.Notification }

// Pushed adds one notification unless its id is already known.
type Pushed struct{ Notification models.Notification }

// Updated applies a read or delete transition.
type Updated struct{ Update models.NotificationUpdate }

func (Seeded) inboxEvent()  {}
func (Pushed) inboxEvent()  {}
func (Updated) inboxEvent() {}

func (in Inbox) Apply(ev InboxEvent) Inbox {
	switch e := ev.(type) {
	case Seeded:
		items := make([]models.Notification, 0, len(e.Items))
		seen := make(map[int64]bool, len(e.Items))
		for _, n := range e.Items {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			items = append(items, n)
		}
		return Inbox{items: items}
	case Pushed:
		if in.Has(e.Notification.ID) {
			return in
		}
		items := make([]models.Notification, 0, len(in.items)+1)
		items = append(items, e.Notification)
		items = append(items, in.items...)
		return Inbox{items: items}
	case Updated:
		return in.update(e.Update)
	}
	return in
}

func (in Inbox) update(u models.NotificationUpdate) Inbox {
	switch u.Action {
	case models.ActionDeleteAll:
		return Inbox{}
	case models.ActionDelete:
		items := make([]models.Notification, 0, len(in.items))
		for _, n := range in.items {
			if n.ID != u.ID {
				items = append(items, n)
			}
		}
		return Inbox{items: items}
	case models.ActionRead, models.ActionReadAll:
		items := make([]models.Notification, len(in.items))
		copy(items, in.items)
		for i := range items {
			if u.Action == models.ActionReadAll || items[i].ID == u.ID {
				items[i].Read = true
			}
		}
		return Inbox{items: items}
	}
	return in
}

// Items returns a copy of the notifications, newest first.
func (in Inbox) Items() []models.Notification {
	out := make([]models.Notification, len(in.items))
	copy(out, in.items)
	return out
}

func (in Inbox) Len() int { return len(in.items) }

// Unread counts notifications not yet read.
func (in Inbox) Unread() int {
	n := 0
	for _, item := range in.items {
		if !item.Read {
			n++
		}
	}
	return n
}

func (in Inbox) Has(id int64) bool {
	for _, n := range in.items {
		if n.ID == id {
			return true
		}
	}
	return false
}
