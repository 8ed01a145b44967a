package peer

import "time"

// RetryPolicy re-creates a failed peer connection a bounded number of times.
// The attempt counter resets once the peer reaches connected.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 2 * time.Second, MaxAttempts: 3}
}

type retryTimer struct {
	timer   *time.Timer
	attempt int
}

func (m *Manager) scheduleRetry(remote string) {
	if m.left || m.retry.MaxAttempts <= 0 {
		return
	}
	if _, ok := m.retries[remote]; ok {
		return
	}

	attempt := m.attempts[remote] + 1
	if attempt > m.retry.MaxAttempts {
		m.log.Error("giving up on peer",
			"remote", remote,
			"attempts", m.retry.MaxAttempts,
		)
		return
	}
	m.attempts[remote] = attempt

	r := &retryTimer{attempt: attempt}
	r.timer = time.AfterFunc(m.retry.Delay, func() {
		m.post(func() { m.fireRetry(remote, r) })
	})
	m.retries[remote] = r

	m.log.Info("peer retry scheduled",
		"remote", remote,
		"attempt", attempt,
		"delay", m.retry.Delay,
	)
}

func (m *Manager) fireRetry(remote string, r *retryTimer) {
	if cur, ok := m.retries[remote]; !ok || cur != r {
		return
	}
	delete(m.retries, remote)

	if m.left || m.media == nil {
		return
	}
	if _, ok := m.entries[remote]; ok {
		return
	}
	if _, err := m.createPeer(remote, true); err != nil {
		m.failed(remote, err)
	}
}

func (m *Manager) cancelRetry(remote string) {
	if r, ok := m.retries[remote]; ok {
		r.timer.Stop()
		delete(m.retries, remote)
	}
}
