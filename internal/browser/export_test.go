package browser

import "time"

func SetManagerClock(m *Manager, now func() time.Time) {
	m.now = now
}
