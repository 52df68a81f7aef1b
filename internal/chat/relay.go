package chat

import "context"

// Relay runs one streamed turn on session and writes its frames to w:
// start, then one content frame per non-empty fragment in production
// order, then either a single error frame or a complete frame carrying the
// transcript. Returning, for any reason, cancels the producer.
func Relay(ctx context.Context, conversationID string, session *Session, text string, w FrameWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.WriteFrame(StartFrame(conversationID)); err != nil {
		return err
	}

	events, err := session.Stream(ctx, text)
	if err != nil {
		return w.WriteFrame(ErrorFrame(err.Error()))
	}

loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch ev.Kind {
			case EventContent:
				if ev.Content == "" {
					continue
				}
				if err := w.WriteFrame(ContentFrame(ev.Content)); err != nil {
					return err
				}
			case EventError:
				return w.WriteFrame(ErrorFrame(ev.Error))
			case EventCompleted:
				break loop
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteFrame(CompleteFrame(conversationID, session.Messages(ctx)))
}
