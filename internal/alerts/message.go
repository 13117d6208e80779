package alerts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"healthmate/internal/models"
	"healthmate/internal/relay"
)

// notificationNamespace scopes notification IDs derived from measurement IDs
var notificationNamespace = uuid.MustParse("6f1c2a8e-4b7d-5c3e-9a10-2d8f4e6b1c7a")

// NotificationID derives the duplicate-safe notification key for a measurement.
// The same measurement ID always yields the same key.
func NotificationID(measurementID string) string {
	return "vital-" + uuid.NewSHA1(notificationNamespace, []byte(measurementID)).String()
}

// Subject is the email subject line for an out-of-range alert
func Subject(appName string, settings *models.UserSettings) string {
	return fmt.Sprintf("%s Out-of-Range Vital Reading for %s", appName, settings.Name())
}

func salutation(contacts []models.EmergencyContact) string {
	if len(contacts) == 1 && strings.TrimSpace(contacts[0].Name) != "" {
		return "Dear " + strings.TrimSpace(contacts[0].Name) + ","
	}
	return "Dear Emergency Contact,"
}

// BuildEmail assembles the relay request for an out-of-range reading
func BuildEmail(appName string, m *models.Measurement, v Verdict, settings *models.UserSettings) relay.Email {
	name := settings.Name()

	var b strings.Builder
	b.WriteString(salutation(settings.Contacts))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s has logged a %s reading that is outside the range they configured in %s.\n\n",
		name, m.Kind().Label(), appName)
	fmt.Fprintf(&b, "Reading: %s\n", v.FormattedValue)
	if len(v.Violations) > 0 {
		parts := make([]string, len(v.Violations))
		for i, viol := range v.Violations {
			parts[i] = viol.String()
		}
		fmt.Fprintf(&b, "Details: %s\n", strings.Join(parts, "; "))
	}
	fmt.Fprintf(&b, "Time: %s\n", m.TimeOfDay())
	fmt.Fprintf(&b, "Date: %s\n\n", m.Date())
	fmt.Fprintf(&b, "Please check in with %s.\n\n- %s", name, appName)

	return relay.Email{
		To:      settings.Recipients(),
		Subject: Subject(appName, settings),
		Body:    b.String(),
	}
}

// BuildNotification assembles the local alert shown to the user
func BuildNotification(m *models.Measurement, v Verdict, delivered bool) models.Notification {
	body := fmt.Sprintf("%s at %s on %s is outside your range.", v.FormattedValue, m.TimeOfDay(), m.Date())
	if delivered {
		body += " Your emergency contacts have been emailed."
	} else {
		body += " We could not email your emergency contacts."
	}
	return models.Notification{
		ID:     NotificationID(m.ID),
		UserID: m.UserID,
		Title:  "Out-of-Range " + m.Kind().Label(),
		Body:   body,
	}
}
