package events

import (
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
)

var logger = logging.NewLogger("tracker-adapter")

// ConnectTrackerToEventBus subscribes a run tracker to run events so the
// executor can publish without holding a tracker reference
func ConnectTrackerToEventBus(eventBus *EventBus, tracker interfaces.RunTracker) {
	eventBus.Subscribe(EventStatusChanged, func(event RunEvent) {
		if event.Status != nil {
			if err := tracker.SetStatus(event.RunID, *event.Status); err != nil {
				logger.Errorf("Failed to update run %s status: %v", event.RunID, err)
			}
		}
	})

	eventBus.Subscribe(EventResultReady, func(event RunEvent) {
		if event.Result != nil {
			if err := tracker.SetResult(event.RunID, event.Result); err != nil {
				logger.Errorf("Failed to set run %s result: %v", event.RunID, err)
			}
		}
	})

	eventBus.Subscribe(EventError, func(event RunEvent) {
		logger.Errorf("Run %s error: %v", event.RunID, event.Error)
	})
}
