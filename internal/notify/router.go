package notify

import "context"

// Router sends guest notifications to Guest and staff notices to Staff.
// A nil side silently drops its kinds.
type Router struct {
	Guest Sender
	Staff Sender
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	s := r.senderFor(msg.Kind)
	if s == nil {
		return nil
	}
	return s.Send(ctx, msg)
}

func (r *Router) Channel() string {
	return "router"
}

// ChannelFor names the channel a kind is delivered on.
func (r *Router) ChannelFor(kind Kind) string {
	s := r.senderFor(kind)
	if s == nil {
		return "none"
	}
	return s.Channel()
}

func (r *Router) senderFor(kind Kind) Sender {
	if kind.IsStaff() {
		return r.Staff
	}
	return r.Guest
}
