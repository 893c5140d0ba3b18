package action

import "log/slog"

// Notifier is the capability interface for native desktop notifications.
// Granted reports whether the user previously granted permission; Notify is
// only called when it returns true.
type Notifier interface {
	Granted() bool
	Notify(title, body string) error
}

// builtinHandlers returns the default handler set. These are deliberately
// thin: hosts are expected to supplement or replace them via Queue.OnAction.
func builtinHandlers(q *Queue) map[string]Handler {
	logOnly := func(name string) Handler {
		return func(a Action) error {
			slog.Info("action: "+name, "priority", a.Priority, "data", a.Data)
			return nil
		}
	}
	return map[string]Handler{
		TypeSupplyForecast: logOnly("supply forecast requested"),
		TypeFarmerList:     logOnly("farmer list requested"),
		TypeWeatherAlerts:  logOnly("weather alerts requested"),
		TypeDiseaseMap:     logOnly("disease map requested"),
		TypeInventory:      logOnly("inventory requested"),
		TypeFarmerProfile:  logOnly("farmer profile requested"),
		TypeNotification: func(a Action) error {
			if q.Notifier == nil || !q.Notifier.Granted() {
				return nil
			}
			title, _ := a.Data["title"].(string)
			body, _ := a.Data["message"].(string)
			if title == "" {
				title = "Notification"
			}
			return q.Notifier.Notify(title, body)
		},
	}
}
